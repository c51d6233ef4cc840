package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pages map[uint32][]byte
}

func (f fakeSource) Page(n uint32) ([]byte, error) {
	p, ok := f.pages[n]
	if !ok {
		return nil, errPageNotFound{n}
	}
	return p, nil
}

type errPageNotFound struct{ n uint32 }

func (e errPageNotFound) Error() string { return "page not found" }

func putU16(buf []byte, off int, v uint16) {
	buf[off] = byte(v >> 8)
	buf[off+1] = byte(v)
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

// buildLeafPage builds a minimal table-leaf page with zero cells (content
// is irrelevant to the walker, which only looks at the page-type byte).
func buildLeafPage(size int) []byte {
	return buildLeafPageAt(size, 0)
}

func buildLeafPageAt(size, offset int) []byte {
	buf := make([]byte, size)
	buf[offset] = 0x0D // table leaf
	putU16(buf, offset+1, 0)
	putU16(buf, offset+3, 0) // cell count 0
	putU16(buf, offset+5, uint16(size))
	buf[offset+7] = 0
	return buf
}

// buildInteriorPage builds a table-interior page whose cell-pointer array
// references `children` interior cells (each just a 4-byte child pointer
// followed by a 1-byte rowid varint), plus rightmost.
func buildInteriorPage(size int, children []uint32, rightmost uint32) []byte {
	buf := make([]byte, size)
	buf[0] = 0x05 // table interior
	putU16(buf, 1, 0)
	putU16(buf, 3, uint16(len(children)))
	cellContentStart := size - len(children)*5
	putU16(buf, 5, uint16(cellContentStart))
	buf[7] = 0
	putU32(buf, 8, rightmost)

	ptrArrayStart := 12
	cellOffset := cellContentStart
	for i, child := range children {
		putU16(buf, ptrArrayStart+i*2, uint16(cellOffset))
		putU32(buf, cellOffset, child)
		buf[cellOffset+4] = 0x01 // rowid varint, value 1
		cellOffset += 5
	}
	return buf
}

func TestWalkerLeafPagesSimpleTree(t *testing.T) {
	const pageSize = 64
	root := buildInteriorPage(pageSize, []uint32{3, 4}, 5)
	leaf3 := buildLeafPage(pageSize)
	leaf4 := buildLeafPage(pageSize)
	leaf5 := buildLeafPage(pageSize)

	src := fakeSource{pages: map[uint32][]byte{2: root, 3: leaf3, 4: leaf4, 5: leaf5}}
	w := NewWalker(src)
	leaves, err := w.LeafPages(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4, 5}, leaves)
}

func TestWalkerLeafPagesSinglePageRootIsLeaf(t *testing.T) {
	const pageSize = 200
	leaf := buildLeafPageAt(pageSize, 100)
	src := fakeSource{pages: map[uint32][]byte{1: leaf}}
	w := NewWalker(src)
	leaves, err := w.LeafPages(1)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, leaves)
}

func TestWalkerDetectsCycle(t *testing.T) {
	const pageSize = 64
	// page 2 is interior and points to itself via its single child cell.
	root := buildInteriorPage(pageSize, []uint32{2}, 0)
	src := fakeSource{pages: map[uint32][]byte{2: root}}
	w := NewWalker(src)
	_, err := w.LeafPages(2)
	require.ErrorIs(t, err, ErrCorruptTree)
}
