package pageclass

import (
	"errors"
	"fmt"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
)

// ErrMalformedFreelist is returned when a trunk page's leaf_count would
// run the trunk's own entry array past the page boundary, or a trunk
// chain revisits a page.
var ErrMalformedFreelist = errors.New("pageclass: malformed free-list trunk")

// PageSource reads a page's raw bytes by page number.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// FreelistPages walks the free-list trunk chain starting at firstTrunk and
// returns every trunk page number and every leaf page number it names, per
// the format's trunk layout: (next_trunk u32, leaf_count u32, leaf_page
// u32 × leaf_count).
func FreelistPages(src PageSource, firstTrunk uint32) (trunks, leaves []uint32, err error) {
	visited := make(map[uint32]bool)
	trunk := firstTrunk
	for trunk != 0 {
		if visited[trunk] {
			return trunks, leaves, fmt.Errorf("%w: trunk page %d revisited", ErrMalformedFreelist, trunk)
		}
		visited[trunk] = true
		trunks = append(trunks, trunk)

		buf, err := src.Page(trunk)
		if err != nil {
			return trunks, leaves, fmt.Errorf("pageclass: free-list trunk %d: %w", trunk, err)
		}
		if len(buf) < 8 {
			return trunks, leaves, fmt.Errorf("%w: trunk page %d too short", ErrMalformedFreelist, trunk)
		}
		next, err := dbformat.ReadUint32BE(buf[0:4])
		if err != nil {
			return trunks, leaves, err
		}
		leafCount, err := dbformat.ReadUint32BE(buf[4:8])
		if err != nil {
			return trunks, leaves, err
		}
		end := 8 + int(leafCount)*4
		if end > len(buf) {
			return trunks, leaves, fmt.Errorf("%w: trunk page %d declares %d leaves past page bounds", ErrMalformedFreelist, trunk, leafCount)
		}
		for i := 0; i < int(leafCount); i++ {
			off := 8 + i*4
			leaf, err := dbformat.ReadUint32BE(buf[off : off+4])
			if err != nil {
				return trunks, leaves, err
			}
			leaves = append(leaves, leaf)
		}
		trunk = next
	}
	return trunks, leaves, nil
}
