// Package grepout applies a single byte-level regular expression across
// every page's freeblocks and the file's free-list leaves, reporting
// page+offset matches without any table-schema or heuristics-file
// involvement. It backs the `grep <db> <byte-regex>` subcommand.
package grepout

import (
	"fmt"
	"regexp"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
	"github.com/lindeneg/dbsalvage/internal/freeblock"
	"github.com/lindeneg/dbsalvage/internal/pageclass"
)

// PageSource reads a page's raw bytes by page number, satisfied by
// *pagecache.Cache.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// Match is one place in the file where the pattern matched unallocated
// space: a freeblock, the cell-pointer/content gap, or a free-list leaf.
type Match struct {
	Page   uint32
	Offset int
	Bytes  []byte
}

// Compile compiles pattern the same way the heuristics engine does:
// plain regexp.Compile over the raw string, relying on Go's native
// \xNN hex-escape support in regexp syntax.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("grepout: invalid pattern: %w", err)
	}
	return re, nil
}

// Scan walks every page in the file (1..header.PageCount), runs pattern
// against each table-leaf page's freeblock ranges and unallocated band,
// and against every free-list leaf page (trunk pages are not scanned),
// returning every match in page order.
func Scan(src PageSource, header *dbformat.Header, pattern *regexp.Regexp) ([]Match, error) {
	var matches []Match

	_, freelistLeaves, err := pageclass.FreelistPages(src, header.FirstFreelistTrunk)
	if err != nil {
		return nil, fmt.Errorf("grepout: walking free list: %w", err)
	}
	onFreelist := make(map[uint32]bool, len(freelistLeaves))
	for _, fl := range freelistLeaves {
		onFreelist[fl] = true
	}

	for n := uint32(1); n <= header.PageCount; n++ {
		page, err := src.Page(n)
		if err != nil {
			continue
		}

		if onFreelist[n] {
			matches = append(matches, scanWindow(n, 0, page, pattern)...)
			continue
		}

		offset := 0
		if n == 1 {
			offset = dbformat.HeaderSize
		}
		hdr, err := pageclass.ParseHeader(page, offset)
		if err != nil || hdr.PageType != pageclass.TypeTableLeaf {
			continue
		}
		ranges, _ := freeblock.Scan(page, offset, hdr) // malformed chains: scan whatever was found
		for _, r := range ranges {
			matches = append(matches, scanWindow(n, r.Start, page[r.Start:r.End], pattern)...)
		}
	}
	return matches, nil
}

func scanWindow(page uint32, base int, window []byte, pattern *regexp.Regexp) []Match {
	var out []Match
	for _, loc := range pattern.FindAllIndex(window, -1) {
		out = append(out, Match{Page: page, Offset: base + loc[0], Bytes: append([]byte{}, window[loc[0]:loc[1]]...)})
	}
	return out
}
