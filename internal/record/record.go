// Package record decodes a B-tree cell's record (header + payload) into
// typed column values, chasing overflow chains when a payload spills past
// a single page.
package record

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

var (
	ErrBadHeader         = errors.New("record: invalid record header")
	ErrOverflowTruncated = errors.New("record: overflow chain ended before supplying full payload")
	ErrOverflowCycle     = errors.New("record: overflow chain revisits a page")
)

// PageSource reads a page's raw bytes by page number, used to chase
// overflow chains.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// Value is one decoded column.
type Value struct {
	Serial        SerialType
	Null          bool
	Int           int64
	Float         float64
	Blob          []byte
	Text          string
	BadTextRepair bool // set if invalid code units were replaced while decoding TEXT
}

// Record is a fully decoded row payload.
type Record struct {
	HeaderLength int64
	Values       []Value
}

// Limits bounds the local (in-page) payload size computation the format
// uses to decide how many bytes of an overflowing payload stay in the
// cell versus spill to overflow pages.
type Limits struct {
	UsableSize int
	MaxLocal   int
	MinLocal   int
}

// localPayloadSize returns how many payload bytes are stored in-page when
// the full payload exceeds MaxLocal, per the format's fixed formula.
func (l Limits) localPayloadSize(payloadLen int) int {
	if payloadLen <= l.MaxLocal {
		return payloadLen
	}
	surplus := l.MinLocal + (payloadLen-l.MinLocal)%(l.UsableSize-4)
	if surplus <= l.MaxLocal {
		return surplus
	}
	return l.MinLocal
}

// TableLeafCell is a decoded table-leaf cell: payload length, rowid, and
// the record payload bytes (already fully assembled, including any
// overflow-chased tail).
type TableLeafCell struct {
	PayloadLength int64
	RowID         int64
	Payload       []byte
}

// DecodeTableLeafCell reads a table-leaf cell starting at offset within
// page: payload_length varint, rowid varint, the in-page payload prefix,
// and — if the payload overflows — the first overflow page number,
// chasing the chain via source.
func DecodeTableLeafCell(page []byte, offset int, limits Limits, source PageSource) (*TableLeafCell, error) {
	payloadLenU, n, err := dbformat.ReadVarint(page[offset:])
	if err != nil {
		return nil, fmt.Errorf("record: payload length: %w", err)
	}
	payloadLen := int64(payloadLenU)
	pos := offset + n
	rowIDU, n, err := dbformat.ReadVarint(page[pos:])
	if err != nil {
		return nil, fmt.Errorf("record: rowid: %w", err)
	}
	rowID := int64(rowIDU)
	pos += n

	local := limits.localPayloadSize(int(payloadLen))
	if pos+local > len(page) {
		return nil, fmt.Errorf("record: in-page payload runs past page bounds")
	}
	payload := make([]byte, 0, payloadLen)
	payload = append(payload, page[pos:pos+local]...)

	if local < int(payloadLen) {
		overflowStart := pos + local
		if overflowStart+4 > len(page) {
			return nil, fmt.Errorf("record: missing overflow page pointer")
		}
		firstOverflow, err := dbformat.ReadUint32BE(page[overflowStart : overflowStart+4])
		if err != nil {
			return nil, err
		}
		rest, err := chaseOverflow(firstOverflow, int(payloadLen)-local, source)
		if err != nil {
			return nil, err
		}
		payload = append(payload, rest...)
	}

	return &TableLeafCell{PayloadLength: payloadLen, RowID: rowID, Payload: payload}, nil
}

// chaseOverflow walks the overflow chain starting at page firstPage,
// collecting exactly need bytes of payload. Each overflow page begins
// with a 4-byte next-page number (0 terminates) followed by payload bytes.
func chaseOverflow(firstPage uint32, need int, source PageSource) ([]byte, error) {
	out := make([]byte, 0, need)
	visited := make(map[uint32]bool)
	page := firstPage
	for len(out) < need {
		if page == 0 {
			return nil, ErrOverflowTruncated
		}
		if visited[page] {
			return nil, ErrOverflowCycle
		}
		visited[page] = true

		buf, err := source.Page(page)
		if err != nil {
			return nil, fmt.Errorf("record: overflow page %d: %w", page, err)
		}
		if len(buf) < 4 {
			return nil, fmt.Errorf("record: overflow page %d too short", page)
		}
		next, err := dbformat.ReadUint32BE(buf[0:4])
		if err != nil {
			return nil, err
		}
		chunk := buf[4:]
		remaining := need - len(out)
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		page = next
	}
	return out, nil
}

// DecodePayload decodes a fully-assembled record payload (header + column
// bytes) into typed values. maxColumns, if nonzero, rejects headers that
// don't declare exactly that many serial types — used by the recovery
// orchestrator to constrain freeblock candidates to a table's known
// column count.
func DecodePayload(payload []byte, enc dbformat.TextEncoding, maxColumns int) (*Record, error) {
	headerLenU, n, err := dbformat.ReadVarint(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: header length: %v", ErrBadHeader, err)
	}
	headerLen := int64(headerLenU)
	if headerLen < 1 || int(headerLen) > len(payload) {
		return nil, fmt.Errorf("%w: header length %d out of bounds", ErrBadHeader, headerLen)
	}

	serialTypesBuf := payload[n:headerLen]
	variants, consumed, err := dbformat.ReadVarints(serialTypesBuf)
	if err != nil {
		return nil, fmt.Errorf("%w: serial types: %v", ErrBadHeader, err)
	}
	if consumed != len(serialTypesBuf) {
		return nil, fmt.Errorf("%w: serial type array did not consume the declared header length", ErrBadHeader)
	}
	if maxColumns > 0 && len(variants) != maxColumns {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrBadHeader, len(variants), maxColumns)
	}

	serials := make([]SerialType, len(variants))
	var totalSize int64
	for i, v := range variants {
		st := Decode(int64(v))
		serials[i] = st
		totalSize += st.Size
	}
	if int(headerLen)+int(totalSize) > len(payload) {
		return nil, fmt.Errorf("%w: declared payload size %d exceeds available %d bytes", ErrBadHeader, int(headerLen)+int(totalSize), len(payload))
	}

	values := make([]Value, len(serials))
	pos := int(headerLen)
	for i, st := range serials {
		v, err := decodeColumn(st, payload[pos:pos+int(st.Size)], enc)
		if err != nil {
			return nil, err
		}
		values[i] = v
		pos += int(st.Size)
	}

	return &Record{HeaderLength: headerLen, Values: values}, nil
}

func decodeColumn(st SerialType, data []byte, enc dbformat.TextEncoding) (Value, error) {
	v := Value{Serial: st}
	switch st.Kind() {
	case KindNull:
		v.Null = true
	case KindZero:
		v.Int = 0
	case KindOne:
		v.Int = 1
	case KindInt:
		i, err := decodeInt(st.Code, data)
		if err != nil {
			return v, err
		}
		v.Int = i
	case KindFloat:
		f, err := dbformat.ReadFloat64BE(data)
		if err != nil {
			return v, err
		}
		v.Float = f
	case KindBlob:
		v.Blob = append([]byte(nil), data...)
	case KindText:
		text, repaired := decodeText(data, enc)
		v.Text = text
		v.BadTextRepair = repaired
	case KindReserved:
		return v, fmt.Errorf("%w: reserved serial type %d", ErrBadHeader, st.Code)
	}
	return v, nil
}

func decodeInt(code int64, data []byte) (int64, error) {
	switch code {
	case 1:
		return dbformat.ReadInt8(data)
	case 2:
		return dbformat.ReadInt16BE(data)
	case 3:
		return dbformat.ReadInt24BE(data)
	case 4:
		return dbformat.ReadInt32BE(data)
	case 5:
		return dbformat.ReadInt48BE(data)
	case 6:
		return dbformat.ReadInt64BE(data)
	default:
		return 0, fmt.Errorf("record: unexpected integer serial type %d", code)
	}
}

// decodeText decodes TEXT bytes per the file's declared encoding. Invalid
// code units are replaced with the Unicode replacement character and the
// second return value is set so callers can flag the row.
func decodeText(data []byte, enc dbformat.TextEncoding) (string, bool) {
	switch enc {
	case dbformat.EncodingUTF16LE, dbformat.EncodingUTF16BE:
		if len(data)%2 != 0 {
			data = data[:len(data)-1]
		}
		units := make([]uint16, len(data)/2)
		for i := range units {
			if enc == dbformat.EncodingUTF16LE {
				units[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
			} else {
				units[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
			}
		}
		runes := utf16.Decode(units)
		repaired := false
		for _, r := range runes {
			if r == utf8.RuneError {
				repaired = true
				break
			}
		}
		return string(runes), repaired
	default:
		if utf8.Valid(data) {
			return string(data), false
		}
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), true
	}
}
