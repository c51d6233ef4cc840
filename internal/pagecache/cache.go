// Package pagecache opens a database file read-only and serves fixed-size
// pages by number, caching each page's bytes for the lifetime of the run.
package pagecache

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

var ErrOutOfRange = errors.New("pagecache: page number out of range")

// Cache is the sole owner of the file handle and the only component that
// reads bytes off disk. Parsed structures elsewhere conceptually borrow
// from the byte slices it returns and must not retain them past the run.
type Cache struct {
	file   *os.File
	header *dbformat.Header

	mu    sync.Mutex
	pages map[uint32][]byte
}

// Open opens path read-only, parses the file header, and returns a ready
// Cache. The file is never written to by any method on Cache.
func Open(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pagecache: open: %w", err)
	}
	headerBuf := make([]byte, dbformat.HeaderSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagecache: read header: %w", err)
	}
	hdr, err := dbformat.ParseHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Cache{
		file:   f,
		header: hdr,
		pages:  make(map[uint32][]byte),
	}, nil
}

// Header returns the parsed file header.
func (c *Cache) Header() *dbformat.Header {
	return c.header
}

// Page returns exactly PageSize bytes starting at the file offset for page
// number n (1-based). Page 1 includes the 100-byte file header at its
// start; callers that need the B-tree page header on page 1 must skip it.
func (c *Cache) Page(n uint32) ([]byte, error) {
	if n == 0 || n > c.header.PageCount {
		return nil, fmt.Errorf("%w: page %d (have %d pages)", ErrOutOfRange, n, c.header.PageCount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.pages[n]; ok {
		return buf, nil
	}
	buf := make([]byte, c.header.PageSize)
	offset := int64(n-1) * int64(c.header.PageSize)
	if _, err := c.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("pagecache: read page %d: %w", n, err)
	}
	c.pages[n] = buf
	return buf, nil
}

// PageCount returns the database's declared page count.
func (c *Cache) PageCount() uint32 {
	return c.header.PageCount
}

// Close releases the underlying file handle and drops all cached pages.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.pages = nil
	c.mu.Unlock()
	return c.file.Close()
}
