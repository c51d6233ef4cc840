package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

// buildSchemaRowPayload assembles a sqlite_schema record payload for one
// "table" entry: (type TEXT, name TEXT, tbl_name TEXT, rootpage INT, sql TEXT).
func buildSchemaRowPayload(name, sql string, rootpage int64) []byte {
	typ := []byte("table")
	nameB := []byte(name)
	tblNameB := []byte(name)
	sqlB := []byte(sql)

	serialText := func(b []byte) uint64 { return uint64(13 + len(b)*2) }
	var header []byte
	header = append(header, dbformat.PutVarint(serialText(typ))...)
	header = append(header, dbformat.PutVarint(serialText(nameB))...)
	header = append(header, dbformat.PutVarint(serialText(tblNameB))...)
	header = append(header, dbformat.PutVarint(1)...) // serial type 1: int8
	header = append(header, dbformat.PutVarint(serialText(sqlB))...)

	headerLen := dbformat.PutVarint(uint64(len(header) + 1))
	payload := append([]byte{}, headerLen...)
	payload = append(payload, header...)
	payload = append(payload, typ...)
	payload = append(payload, nameB...)
	payload = append(payload, tblNameB...)
	payload = append(payload, byte(rootpage))
	payload = append(payload, sqlB...)
	return payload
}

func buildSchemaLeafPage(pageSize int, payload []byte) []byte {
	buf := make([]byte, pageSize)
	buf[100] = 0x0D
	putU16(buf, 101, 0)
	putU16(buf, 103, 1) // one cell

	cellLen := 0
	payloadLenVarint := dbformat.PutVarint(uint64(len(payload)))
	rowIDVarint := dbformat.PutVarint(1)
	cellLen = len(payloadLenVarint) + len(rowIDVarint) + len(payload)
	cellStart := pageSize - cellLen

	putU16(buf, 105, uint16(cellStart))
	buf[107] = 0

	ptrArrayStart := 108
	putU16(buf, ptrArrayStart, uint16(cellStart))

	pos := cellStart
	copy(buf[pos:], payloadLenVarint)
	pos += len(payloadLenVarint)
	copy(buf[pos:], rowIDVarint)
	pos += len(rowIDVarint)
	copy(buf[pos:], payload)

	return buf
}

func TestReadSchemaDecodesTableRow(t *testing.T) {
	const pageSize = 512
	sql := "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"
	payload := buildSchemaRowPayload("widgets", sql, 2)
	page1 := buildSchemaLeafPage(pageSize, payload)

	src := fakeSource{pages: map[uint32][]byte{1: page1}}
	hdr := &dbformat.Header{
		PageSize:          pageSize,
		TextEncoding:      dbformat.EncodingUTF8,
		ReservedPageSpace: 0,
	}
	tables, err := ReadSchema(src, hdr, nil)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "widgets", tables[0].Name)
	require.Equal(t, uint32(2), tables[0].RootPage)
	require.Equal(t, []string{"id", "name"}, tables[0].Columns)
}

func TestReadSchemaSkipsUndecodableRowAndKeepsOthers(t *testing.T) {
	const pageSize = 512
	sql := "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"
	good := buildSchemaRowPayload("widgets", sql, 2)

	// A truncated payload: declares a header longer than the bytes that
	// follow, so record.DecodePayload fails to decode it.
	bad := []byte{0x09, 0x01, 0x01, 0x01}

	buf := make([]byte, pageSize)
	buf[100] = 0x0D
	putU16(buf, 101, 0)
	putU16(buf, 103, 2) // two cells

	badLenVarint := dbformat.PutVarint(uint64(len(bad)))
	badRowIDVarint := dbformat.PutVarint(1)
	badCellLen := len(badLenVarint) + len(badRowIDVarint) + len(bad)
	badCellStart := pageSize - badCellLen

	goodLenVarint := dbformat.PutVarint(uint64(len(good)))
	goodRowIDVarint := dbformat.PutVarint(2)
	goodCellLen := len(goodLenVarint) + len(goodRowIDVarint) + len(good)
	goodCellStart := badCellStart - goodCellLen

	putU16(buf, 105, uint16(goodCellStart))
	buf[107] = 0

	ptrArrayStart := 108
	putU16(buf, ptrArrayStart, uint16(badCellStart))
	putU16(buf, ptrArrayStart+2, uint16(goodCellStart))

	pos := badCellStart
	copy(buf[pos:], badLenVarint)
	pos += len(badLenVarint)
	copy(buf[pos:], badRowIDVarint)
	pos += len(badRowIDVarint)
	copy(buf[pos:], bad)

	pos = goodCellStart
	copy(buf[pos:], goodLenVarint)
	pos += len(goodLenVarint)
	copy(buf[pos:], goodRowIDVarint)
	pos += len(goodRowIDVarint)
	copy(buf[pos:], good)

	src := fakeSource{pages: map[uint32][]byte{1: buf}}
	hdr := &dbformat.Header{
		PageSize:          pageSize,
		TextEncoding:      dbformat.EncodingUTF8,
		ReservedPageSpace: 0,
	}

	tables, err := ReadSchema(src, hdr, nil)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "widgets", tables[0].Name)
}
