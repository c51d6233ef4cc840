package pagecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, pageSize int, pageCount int) string {
	t.Helper()
	buf := make([]byte, pageSize*pageCount)
	copy(buf, "SQLite format 3\x00")
	buf[16] = byte(pageSize >> 8)
	buf[17] = byte(pageSize)
	buf[21] = 64
	buf[22] = 32
	buf[23] = 32
	buf[31] = byte(pageCount)
	buf[59] = 1
	// Mark page 2's first byte so Page(2) is distinguishable from zero-fill.
	buf[pageSize+0] = 0xAB

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.db")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestCachePageRoundTrip(t *testing.T) {
	path := writeFixture(t, 512, 4)
	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	require.EqualValues(t, 512, c.Header().PageSize)
	require.EqualValues(t, 4, c.PageCount())

	p1, err := c.Page(1)
	require.NoError(t, err)
	require.Len(t, p1, 512)
	require.Equal(t, "SQLite format 3\x00", string(p1[:16]))

	p2, err := c.Page(2)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), p2[0])

	// Same slice instance returned on repeated access (cached).
	p2Again, err := c.Page(2)
	require.NoError(t, err)
	require.Same(t, &p2[0], &p2Again[0])
}

func TestCacheOutOfRange(t *testing.T) {
	path := writeFixture(t, 512, 2)
	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Page(0)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = c.Page(3)
	require.ErrorIs(t, err, ErrOutOfRange)
}
