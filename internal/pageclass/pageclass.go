// Package pageclass parses the B-tree page header shared by all four
// B-tree page kinds and classifies every page in a file by cross-checking
// pointer-map, B-tree-reachability, and free-list-reachability evidence.
package pageclass

import (
	"fmt"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

// Page type bytes as they appear at the start of a B-tree page header.
const (
	TypeIndexInterior = 0x02
	TypeTableInterior = 0x05
	TypeIndexLeaf     = 0x0A
	TypeTableLeaf     = 0x0D
)

// LeafHeaderSize and InteriorHeaderSize are the two B-tree page header
// lengths; interior pages carry four extra bytes for the right-child
// pointer.
const (
	LeafHeaderSize     = 8
	InteriorHeaderSize = 12
)

// Header is the decoded 8- or 12-byte B-tree page header.
type Header struct {
	PageType            uint8
	FirstFreeblock      uint16
	CellCount           uint16
	CellContentStart    uint16
	FragmentedFreeBytes uint8
	RightMostPointer    uint32 // only set for interior pages
}

// IsLeaf reports whether the page type is one of the two leaf kinds.
func (h *Header) IsLeaf() bool {
	return h.PageType == TypeTableLeaf || h.PageType == TypeIndexLeaf
}

// IsInterior reports whether the page type is one of the two interior kinds.
func (h *Header) IsInterior() bool {
	return h.PageType == TypeTableInterior || h.PageType == TypeIndexInterior
}

// HeaderSize returns this header's on-page size (8 or 12 bytes).
func (h *Header) HeaderSize() int {
	if h.IsInterior() {
		return InteriorHeaderSize
	}
	return LeafHeaderSize
}

// ParseHeader decodes a B-tree page header starting at offset within page.
// offset is 100 for page 1 (past the file header), 0 otherwise.
func ParseHeader(page []byte, offset int) (*Header, error) {
	if offset+LeafHeaderSize > len(page) {
		return nil, fmt.Errorf("pageclass: page too short for header at offset %d", offset)
	}
	pageType, err := dbformat.ReadUint8(page[offset : offset+1])
	if err != nil {
		return nil, err
	}
	firstFree, err := dbformat.ReadUint16BE(page[offset+1 : offset+3])
	if err != nil {
		return nil, err
	}
	cellCount, err := dbformat.ReadUint16BE(page[offset+3 : offset+5])
	if err != nil {
		return nil, err
	}
	contentStart, err := dbformat.ReadUint16BE(page[offset+5 : offset+7])
	if err != nil {
		return nil, err
	}
	fragBytes, err := dbformat.ReadUint8(page[offset+7 : offset+8])
	if err != nil {
		return nil, err
	}
	h := &Header{
		PageType:            pageType,
		FirstFreeblock:      firstFree,
		CellCount:           cellCount,
		CellContentStart:    contentStart,
		FragmentedFreeBytes: fragBytes,
	}
	if h.IsInterior() {
		if offset+InteriorHeaderSize > len(page) {
			return nil, fmt.Errorf("pageclass: page too short for interior header at offset %d", offset)
		}
		rightChild, err := dbformat.ReadUint32BE(page[offset+8 : offset+12])
		if err != nil {
			return nil, err
		}
		h.RightMostPointer = rightChild
	}
	return h, nil
}

// CellPointers decodes the cell-pointer array immediately following the
// page header: CellCount big-endian 16-bit offsets into the page.
func CellPointers(page []byte, offset int, h *Header) ([]uint16, error) {
	start := offset + h.HeaderSize()
	out := make([]uint16, h.CellCount)
	for i := 0; i < int(h.CellCount); i++ {
		p := start + i*2
		v, err := dbformat.ReadUint16BE(page[p : p+2])
		if err != nil {
			return nil, fmt.Errorf("pageclass: cell pointer %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Kind is the role a page plays in the file, as determined by the
// classifier.
type Kind int

const (
	Unknown Kind = iota
	TableLeaf
	TableInterior
	IndexLeaf
	IndexInterior
	PtrMap
	FreelistTrunk
	FreelistLeaf
	Overflow
)

func (k Kind) String() string {
	switch k {
	case TableLeaf:
		return "table-leaf"
	case TableInterior:
		return "table-interior"
	case IndexLeaf:
		return "index-leaf"
	case IndexInterior:
		return "index-interior"
	case PtrMap:
		return "ptrmap"
	case FreelistTrunk:
		return "freelist-trunk"
	case FreelistLeaf:
		return "freelist-leaf"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Disagreement records a page whose classification evidence conflicted
// across sources. It is informational only; it never fails a run.
type Disagreement struct {
	Page    uint32
	FromPtr Kind
	FromBT  Kind
	FromFL  Kind
}

// KindFromPageType maps a raw B-tree page-type byte to a Kind.
func KindFromPageType(pageType uint8) Kind {
	switch pageType {
	case TypeTableLeaf:
		return TableLeaf
	case TypeTableInterior:
		return TableInterior
	case TypeIndexLeaf:
		return IndexLeaf
	case TypeIndexInterior:
		return IndexInterior
	default:
		return Unknown
	}
}
