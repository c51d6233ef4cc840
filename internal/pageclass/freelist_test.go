package pageclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFLSource struct {
	pages map[uint32][]byte
}

func (f fakeFLSource) Page(n uint32) ([]byte, error) {
	p, ok := f.pages[n]
	if !ok {
		return nil, errNotFound{}
	}
	return p, nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "page not found" }

func putU32FL(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func buildTrunkPage(size int, next uint32, leaves []uint32) []byte {
	buf := make([]byte, size)
	putU32FL(buf, 0, next)
	putU32FL(buf, 4, uint32(len(leaves)))
	for i, l := range leaves {
		putU32FL(buf, 8+i*4, l)
	}
	return buf
}

func TestFreelistPagesWalksChain(t *testing.T) {
	trunk2 := buildTrunkPage(64, 5, []uint32{3, 4})
	trunk5 := buildTrunkPage(64, 0, []uint32{6})
	src := fakeFLSource{pages: map[uint32][]byte{2: trunk2, 5: trunk5}}

	trunks, leaves, err := FreelistPages(src, 2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 5}, trunks)
	require.Equal(t, []uint32{3, 4, 6}, leaves)
}

func TestFreelistPagesNoFreelist(t *testing.T) {
	src := fakeFLSource{pages: map[uint32][]byte{}}
	trunks, leaves, err := FreelistPages(src, 0)
	require.NoError(t, err)
	require.Empty(t, trunks)
	require.Empty(t, leaves)
}

func TestFreelistPagesDetectsCycle(t *testing.T) {
	trunk2 := buildTrunkPage(64, 2, nil) // points to itself
	src := fakeFLSource{pages: map[uint32][]byte{2: trunk2}}
	_, _, err := FreelistPages(src, 2)
	require.ErrorIs(t, err, ErrMalformedFreelist)
}

func TestFreelistPagesRejectsOversizedLeafCount(t *testing.T) {
	buf := make([]byte, 16)
	putU32FL(buf, 0, 0)
	putU32FL(buf, 4, 100) // claims 100 leaves in a 16-byte page
	src := fakeFLSource{pages: map[uint32][]byte{2: buf}}
	_, _, err := FreelistPages(src, 2)
	require.ErrorIs(t, err, ErrMalformedFreelist)
}
