package dbformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 127, 128, 129, 16383, 16384,
		1 << 20, 1<<28 - 1, 1 << 28, 1 << 35,
		1<<56 - 1, 1 << 56, 1<<63 + 12345, ^uint64(0),
	}
	for _, v := range cases {
		buf := PutVarint(v)
		require.LessOrEqual(t, len(buf), 9)
		got, n, err := ReadVarint(buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(buf), n)
	}
}

func TestReadVarintTruncated(t *testing.T) {
	// A continuation byte with nothing following is truncated.
	_, _, err := ReadVarint([]byte{0x81})
	require.ErrorIs(t, err, ErrTruncated)

	_, _, err = ReadVarint(nil)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadVarintNineByteForm(t *testing.T) {
	buf := PutVarint(1 << 60)
	require.Len(t, buf, 9)
	v, n, err := ReadVarint(buf)
	require.NoError(t, err)
	require.Equal(t, 9, n)
	require.Equal(t, uint64(1<<60), v)
}

func TestReadVarints(t *testing.T) {
	var data []byte
	data = append(data, PutVarint(1)...)
	data = append(data, PutVarint(300)...)
	data = append(data, PutVarint(70000)...)
	vals, n, err := ReadVarints(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, []uint64{1, 300, 70000}, vals)
}
