// Package btree walks table B-trees to enumerate leaf pages and decode the
// sqlite_schema table, the format's own bookkeeping table recorded on page 1.
package btree

import (
	"fmt"

	"github.com/lindeneg/dbsalvage/internal/pageclass"
)

// PageSource reads a page's raw bytes by page number.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// Walker traverses table B-trees (interior and leaf table pages), using the
// page's own page-type byte to decide which pages are internal nodes.
type Walker struct {
	src PageSource
}

// NewWalker constructs a Walker over src.
func NewWalker(src PageSource) *Walker {
	return &Walker{src: src}
}

// LeafPages returns every table-leaf page reachable from root, walking
// interior pages' child pointers left to right. A page visited twice in
// the same call returns ErrCorruptTree rather than looping forever.
func (w *Walker) LeafPages(root uint32) ([]uint32, error) {
	var leaves []uint32
	visited := make(map[uint32]bool)
	if err := w.walk(root, &leaves, visited, nil); err != nil {
		return leaves, err
	}
	return leaves, nil
}

// CollectKinds walks every given table root and records the B-tree kind
// (table-leaf or table-interior) of each page visited, for the page
// classifier's cross-check. A root whose tree is corrupt (cycle, bad
// header) contributes whatever it gathered before the break and is
// otherwise skipped — this is an informational classification pass, never
// part of the recovery decode path, so a single bad root must not prevent
// classifying the rest of the file.
func CollectKinds(src PageSource, roots []uint32) map[uint32]pageclass.Kind {
	w := NewWalker(src)
	kinds := make(map[uint32]pageclass.Kind)
	for _, root := range roots {
		visited := make(map[uint32]bool)
		_ = w.walk(root, nil, visited, kinds)
	}
	return kinds
}

func (w *Walker) walk(pageNum uint32, leaves *[]uint32, visited map[uint32]bool, kinds map[uint32]pageclass.Kind) error {
	if visited[pageNum] {
		return fmt.Errorf("%w: page %d", ErrCorruptTree, pageNum)
	}
	visited[pageNum] = true

	buf, err := w.src.Page(pageNum)
	if err != nil {
		return fmt.Errorf("btree: page %d: %w", pageNum, err)
	}
	offset := 0
	if pageNum == 1 {
		offset = 100
	}
	hdr, err := pageclass.ParseHeader(buf, offset)
	if err != nil {
		return fmt.Errorf("btree: page %d header: %w", pageNum, err)
	}
	if kinds != nil {
		kinds[pageNum] = pageclass.KindFromPageType(hdr.PageType)
	}

	switch hdr.PageType {
	case pageclass.TypeTableLeaf:
		if leaves != nil {
			*leaves = append(*leaves, pageNum)
		}
		return nil
	case pageclass.TypeTableInterior:
		ptrs, err := pageclass.CellPointers(buf, offset, hdr)
		if err != nil {
			return fmt.Errorf("btree: page %d cell pointers: %w", pageNum, err)
		}
		for _, p := range ptrs {
			child, _, err := readInteriorChild(buf, int(p))
			if err != nil {
				return fmt.Errorf("btree: page %d child pointer: %w", pageNum, err)
			}
			if err := w.walk(child, leaves, visited, kinds); err != nil {
				return err
			}
		}
		if hdr.RightMostPointer != 0 {
			if err := w.walk(hdr.RightMostPointer, leaves, visited, kinds); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("btree: page %d is not a table page (type %d)", pageNum, hdr.PageType)
	}
}

// readInteriorChild reads the 4-byte left-child page number at the start
// of a table-interior cell, returning it and the 4 bytes it occupied; the
// rowid varint that follows it is not read.
func readInteriorChild(page []byte, offset int) (uint32, int, error) {
	if offset+4 > len(page) {
		return 0, 0, fmt.Errorf("btree: truncated interior cell at %d", offset)
	}
	v := uint32(page[offset])<<24 | uint32(page[offset+1])<<16 | uint32(page[offset+2])<<8 | uint32(page[offset+3])
	return v, 4, nil
}
