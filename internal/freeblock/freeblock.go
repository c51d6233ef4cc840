// Package freeblock walks the intra-page freeblock linked list on a
// table-leaf page and enumerates byte ranges that may hold salvageable
// deleted-record bytes.
package freeblock

import (
	"errors"
	"fmt"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
	"github.com/lindeneg/dbsalvage/internal/pageclass"
)

// ErrMalformed is returned when the freeblock chain is out of order, too
// short, or would run past the page boundary. The caller should stop
// scanning that page but continue the run.
var ErrMalformed = errors.New("freeblock: malformed freeblock chain")

// Range is a candidate byte range within a page, expressed as offsets
// relative to the start of the page (not the file).
type Range struct {
	Start, End int
}

// Len reports the range's byte length.
func (r Range) Len() int { return r.End - r.Start }

// Scan walks the freeblock list starting at hdr.FirstFreeblock and returns
// each block's payload range [offset+4, offset+length), plus, as a final
// additional candidate, the unallocated band between the end of the
// cell-pointer array and the start of the cell-content area.
func Scan(page []byte, pageOffset int, hdr *pageclass.Header) ([]Range, error) {
	var ranges []Range
	usableEnd := len(page)

	next := int(hdr.FirstFreeblock)
	prevOffset := -1
	for next != 0 {
		if next <= pageOffset || next+4 > usableEnd {
			return ranges, fmt.Errorf("%w: freeblock at %d out of page bounds", ErrMalformed, next)
		}
		if prevOffset >= 0 && next <= prevOffset {
			return ranges, fmt.Errorf("%w: freeblock offsets not strictly ascending", ErrMalformed)
		}
		nextBlock, err := dbformat.ReadUint16BE(page[next : next+2])
		if err != nil {
			return ranges, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		length, err := dbformat.ReadUint16BE(page[next+2 : next+4])
		if err != nil {
			return ranges, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if length < 4 {
			return ranges, fmt.Errorf("%w: freeblock length %d below minimum of 4", ErrMalformed, length)
		}
		end := next + int(length)
		if end > usableEnd {
			return ranges, fmt.Errorf("%w: freeblock at %d length %d runs past page", ErrMalformed, next, length)
		}
		ranges = append(ranges, Range{Start: next + 4, End: end})
		prevOffset = next
		next = int(nextBlock)
	}

	cellPtrArrayEnd := pageOffset + hdr.HeaderSize() + int(hdr.CellCount)*2
	contentStart := int(hdr.CellContentStart)
	if contentStart == 0 {
		// A page header reporting 0 here means "65536", per the format's
		// convention for cell-content-area start on a maximally-full page.
		contentStart = usableEnd
	}
	if contentStart > cellPtrArrayEnd && contentStart <= usableEnd {
		ranges = append(ranges, Range{Start: cellPtrArrayEnd, End: contentStart})
	}

	return ranges, nil
}
