package dbformat

import "bytes"

const (
	// HeaderSize is the fixed size of the file header at the start of page 1.
	HeaderSize = 100

	headerMagic = "SQLite format 3\x00"

	// Fixed payload-fraction constants the format mandates in the header;
	// the orchestrator uses these (not the header's copies) to derive the
	// overflow threshold, matching the teacher's file.go constants.
	MaxEmbeddedPayloadFraction = 64
	MinEmbeddedPayloadFraction = 32
	LeafPayloadFraction        = 32
)

// TextEncoding identifies how TEXT serial-type payloads are encoded.
type TextEncoding uint32

const (
	EncodingUTF8    TextEncoding = 1
	EncodingUTF16LE TextEncoding = 2
	EncodingUTF16BE TextEncoding = 3
)

// Header holds the fields of the 100-byte file header the recovery engine
// needs. Unused reserved-for-expansion fields are not retained.
type Header struct {
	PageSize              uint32
	FileChangeCounter     uint32
	PageCount             uint32
	FirstFreelistTrunk    uint32
	FreelistPageCount     uint32
	SchemaCookie          uint32
	LargestRootPageNumber uint32 // nonzero iff auto-vacuum/incremental-vacuum
	TextEncoding          TextEncoding
	IncrementalVacuum     uint32
	ReservedPageSpace     uint8
}

// AutoVacuum reports whether the file was written in auto-vacuum or
// incremental-vacuum mode, the precondition for pointer-map pages existing.
func (h *Header) AutoVacuum() bool {
	return h.LargestRootPageNumber != 0
}

// UsablePageSize returns P - R, the portion of each page available to the
// B-tree layer after the reserved region R.
func (h *Header) UsablePageSize() uint32 {
	return h.PageSize - uint32(h.ReservedPageSpace)
}

// OverflowThreshold returns the maximum payload length, in bytes, that can
// be stored entirely in-page for a table-leaf cell (U' in spec terms),
// computed from the usable page size and the fixed payload-fraction
// constants exactly as the format mandates.
func (h *Header) OverflowThreshold() int {
	u := int(h.UsablePageSize())
	maxLocal := ((u - 12) * MaxEmbeddedPayloadFraction / 255) + 12
	return maxLocal
}

// MinLocal returns the minimum payload kept in-page (M in the format spec),
// used to size the in-page prefix for overflowing cells.
func (h *Header) MinLocal() int {
	u := int(h.UsablePageSize())
	return ((u-12)*MinEmbeddedPayloadFraction)/255 + 12
}

// ParseHeader decodes the first HeaderSize bytes of the file.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ErrHeaderTruncated
	}
	if !bytes.Equal(buf[0:16], []byte(headerMagic)) {
		return nil, ErrBadMagic
	}

	rawPageSize, err := ReadUint16BE(buf[16:18])
	if err != nil {
		return nil, err
	}
	pageSize := uint32(rawPageSize)
	if rawPageSize == 1 {
		pageSize = 65536
	}
	if !isValidPageSize(pageSize) {
		return nil, ErrUnsupportedPageSize
	}

	reserved, err := ReadUint8(buf[20:21])
	if err != nil {
		return nil, err
	}

	fileChangeCounter, err := ReadUint32BE(buf[24:28])
	if err != nil {
		return nil, err
	}
	pageCount, err := ReadUint32BE(buf[28:32])
	if err != nil {
		return nil, err
	}
	firstFreelistTrunk, err := ReadUint32BE(buf[32:36])
	if err != nil {
		return nil, err
	}
	freelistPageCount, err := ReadUint32BE(buf[36:40])
	if err != nil {
		return nil, err
	}
	schemaCookie, err := ReadUint32BE(buf[40:44])
	if err != nil {
		return nil, err
	}
	largestRoot, err := ReadUint32BE(buf[52:56])
	if err != nil {
		return nil, err
	}
	textEncoding, err := ReadUint32BE(buf[56:60])
	if err != nil {
		return nil, err
	}
	incrementalVacuum, err := ReadUint32BE(buf[64:68])
	if err != nil {
		return nil, err
	}

	return &Header{
		PageSize:              pageSize,
		FileChangeCounter:     fileChangeCounter,
		PageCount:             pageCount,
		FirstFreelistTrunk:    firstFreelistTrunk,
		FreelistPageCount:     freelistPageCount,
		SchemaCookie:          schemaCookie,
		LargestRootPageNumber: largestRoot,
		TextEncoding:          TextEncoding(textEncoding),
		IncrementalVacuum:     incrementalVacuum,
		ReservedPageSpace:     reserved,
	}, nil
}

func isValidPageSize(p uint32) bool {
	if p < 512 || p > 65536 {
		return false
	}
	return p&(p-1) == 0
}
