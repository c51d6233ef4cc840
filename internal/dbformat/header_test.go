package dbformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeHeader(t *testing.T, pageSize uint16, reserved uint8, pageCount uint32) []byte {
	t.Helper()
	buf := make([]byte, HeaderSize)
	copy(buf, headerMagic)
	buf[16] = byte(pageSize >> 8)
	buf[17] = byte(pageSize)
	buf[20] = reserved
	buf[21] = MaxEmbeddedPayloadFraction
	buf[22] = MinEmbeddedPayloadFraction
	buf[23] = LeafPayloadFraction
	buf[28] = byte(pageCount >> 24)
	buf[29] = byte(pageCount >> 16)
	buf[30] = byte(pageCount >> 8)
	buf[31] = byte(pageCount)
	buf[56] = 0
	buf[57] = 0
	buf[58] = 0
	buf[59] = 1 // UTF-8
	return buf
}

func TestParseHeaderBasics(t *testing.T) {
	buf := makeHeader(t, 4096, 0, 10)
	h, err := ParseHeader(buf)
	require.NoError(t, err)
	require.EqualValues(t, 4096, h.PageSize)
	require.EqualValues(t, 10, h.PageCount)
	require.Equal(t, EncodingUTF8, h.TextEncoding)
	require.False(t, h.AutoVacuum())
	require.EqualValues(t, 4096, h.UsablePageSize())
}

func TestParseHeaderPageSize1Means65536(t *testing.T) {
	buf := makeHeader(t, 1, 0, 1)
	h, err := ParseHeader(buf)
	require.NoError(t, err)
	require.EqualValues(t, 65536, h.PageSize)
}

func TestParseHeaderBadMagic(t *testing.T) {
	buf := makeHeader(t, 4096, 0, 1)
	buf[0] = 'X'
	_, err := ParseHeader(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestParseHeaderUnsupportedPageSize(t *testing.T) {
	buf := makeHeader(t, 4096, 0, 1)
	// 4097 is not a power of two.
	buf[16] = 0x10
	buf[17] = 0x01
	_, err := ParseHeader(buf)
	require.ErrorIs(t, err, ErrUnsupportedPageSize)
}

func TestParseHeaderTruncated(t *testing.T) {
	_, err := ParseHeader(make([]byte, 50))
	require.ErrorIs(t, err, ErrHeaderTruncated)
}

func TestOverflowThresholdKnownSizes(t *testing.T) {
	buf := makeHeader(t, 4096, 0, 1)
	h, err := ParseHeader(buf)
	require.NoError(t, err)
	// Standard 4096-byte page: maxLocal = ((4096-12)*64/255)+12 = 1025.
	require.Equal(t, 1025, h.OverflowThreshold())
}
