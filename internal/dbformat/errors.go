// Package dbformat decodes the primitives of the on-disk page format:
// fixed-width big-endian integers, varints, and the 100-byte file header.
package dbformat

import "errors"

// Sentinel errors for the byte-level decoders and header parser. Callers
// branch on these with errors.Is instead of matching message strings.
var (
	ErrTruncated           = errors.New("dbformat: buffer ends mid-integer")
	ErrVarintOverflow      = errors.New("dbformat: varint did not terminate within 9 bytes")
	ErrBadMagic            = errors.New("dbformat: bad header magic")
	ErrUnsupportedPageSize = errors.New("dbformat: unsupported page size")
	ErrHeaderTruncated     = errors.New("dbformat: file shorter than header")
)
