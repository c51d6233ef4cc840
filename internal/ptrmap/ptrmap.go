// Package ptrmap resolves, for auto-vacuum databases, the parent page and
// kind of any page via the file's pointer-map pages.
package ptrmap

import (
	"errors"
	"fmt"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

// ErrUnavailable is returned by every query when the file was not written
// in auto-vacuum or incremental-vacuum mode, so no ptrmap pages exist.
var ErrUnavailable = errors.New("ptrmap: not available (file is not auto-vacuum)")

// entrySize is the fixed on-disk size of one ptrmap entry: a 1-byte kind
// plus a 4-byte big-endian parent page number.
const entrySize = 5

// Kind identifies what role a page plays according to the pointer map.
type Kind uint8

const (
	KindUnknown      Kind = 0
	KindRootPage     Kind = 1
	KindFreePage     Kind = 2
	KindOverflow1    Kind = 3 // first page of an overflow chain
	KindOverflow2    Kind = 4 // subsequent page of an overflow chain
	KindBTreeNonRoot Kind = 5
)

// PageSource reads a page's raw bytes by page number.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// Reader answers parent/kind queries for any page number.
type Reader struct {
	pages      PageSource
	available  bool
	pageSize   uint32
	usableSize uint32
}

// New constructs a Reader. available should reflect Header.AutoVacuum();
// when false, every query returns ErrUnavailable immediately.
func New(pages PageSource, pageSize, usableSize uint32, available bool) *Reader {
	return &Reader{pages: pages, available: available, pageSize: pageSize, usableSize: usableSize}
}

// entriesPerPage is the number of (page) entries described by one ptrmap
// page, derived from how many 5-byte entries fit in the usable page size.
func (r *Reader) entriesPerPage() uint32 {
	return r.usableSize / entrySize
}

// IsPtrMapPage reports whether n is itself a pointer-map page, i.e. one of
// the fixed stride positions. Page 1 is never a ptrmap page; ptrmap pages
// begin at page 2 and then recur every (entriesPerPage+1) pages.
func (r *Reader) IsPtrMapPage(n uint32) bool {
	if !r.available || n < 2 {
		return false
	}
	stride := r.entriesPerPage() + 1
	return (n-2)%stride == 0
}

// ParentAndKind returns the kind and parent page recorded for page n.
func (r *Reader) ParentAndKind(n uint32) (Kind, uint32, error) {
	if !r.available {
		return KindUnknown, 0, ErrUnavailable
	}
	if n < 2 {
		return KindUnknown, 0, fmt.Errorf("ptrmap: page 1 has no ptrmap entry")
	}
	stride := r.entriesPerPage() + 1
	// The ptrmap page covering n is the nearest stride boundary at or
	// before n, excluding n itself if n is the ptrmap page.
	offsetIntoGroup := (n - 2) % stride
	if offsetIntoGroup == 0 {
		return KindUnknown, 0, fmt.Errorf("ptrmap: page %d is itself a ptrmap page", n)
	}
	ptrMapPage := n - offsetIntoGroup
	entryIndex := offsetIntoGroup - 1

	buf, err := r.pages.Page(ptrMapPage)
	if err != nil {
		return KindUnknown, 0, err
	}
	start := int(entryIndex) * entrySize
	if start+entrySize > len(buf) {
		return KindUnknown, 0, fmt.Errorf("ptrmap: entry for page %d out of bounds", n)
	}
	kindByte, err := dbformat.ReadUint8(buf[start : start+1])
	if err != nil {
		return KindUnknown, 0, err
	}
	parent, err := dbformat.ReadUint32BE(buf[start+1 : start+5])
	if err != nil {
		return KindUnknown, 0, err
	}
	return Kind(kindByte), parent, nil
}
