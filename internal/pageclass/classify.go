package pageclass

import (
	"errors"

	"github.com/lindeneg/dbsalvage/internal/ptrmap"
)

// Result is the final classification assigned to one page.
type Result struct {
	Page uint32
	Kind Kind
}

// Classify cross-references three independent sources of evidence for
// every page number 1..pageCount:
//
//   - btreeKinds: pages reached by walking every table's (and index's, if
//     supplied) B-tree, the most precise source when present;
//   - ptr: the pointer-map reader, consulted when the file is auto-vacuum;
//   - freelistTrunks/freelistLeaves: pages reached by walking the header's
//     free-list trunk chain.
//
// Pages that are themselves pointer-map pages are classified as PtrMap
// directly, bypassing the other sources. Every remaining page is assigned
// the most precise kind available; when two sources disagree about a page
// that isn't a pointer-map page, a Disagreement is recorded but the page
// is still classified — cross-check disagreement is informational only
// and never fails the run.
func Classify(pageCount uint32, ptr *ptrmap.Reader, btreeKinds map[uint32]Kind, freelistTrunks, freelistLeaves []uint32) ([]Result, []Disagreement) {
	trunkSet := toSet(freelistTrunks)
	leafSet := toSet(freelistLeaves)

	results := make([]Result, 0, pageCount)
	var disagreements []Disagreement

	for n := uint32(1); n <= pageCount; n++ {
		if ptr != nil && ptr.IsPtrMapPage(n) {
			results = append(results, Result{Page: n, Kind: PtrMap})
			continue
		}

		fromBT, haveBT := btreeKinds[n]
		fromFL := freelistKind(n, trunkSet, leafSet)
		fromPtr, havePtr := ptrmapKind(ptr, n)

		kind := Unknown
		switch {
		case haveBT:
			kind = fromBT
		case havePtr && fromPtr != Unknown:
			kind = fromPtr
		case fromFL != Unknown:
			kind = fromFL
		}

		if disagree(haveBT, fromBT, havePtr, fromPtr, fromFL) {
			disagreements = append(disagreements, Disagreement{
				Page:    n,
				FromBT:  orUnknown(haveBT, fromBT),
				FromPtr: orUnknown(havePtr, fromPtr),
				FromFL:  fromFL,
			})
		}

		results = append(results, Result{Page: n, Kind: kind})
	}
	return results, disagreements
}

func toSet(pages []uint32) map[uint32]bool {
	set := make(map[uint32]bool, len(pages))
	for _, p := range pages {
		set[p] = true
	}
	return set
}

func freelistKind(n uint32, trunks, leaves map[uint32]bool) Kind {
	switch {
	case trunks[n]:
		return FreelistTrunk
	case leaves[n]:
		return FreelistLeaf
	default:
		return Unknown
	}
}

func ptrmapKind(ptr *ptrmap.Reader, n uint32) (Kind, bool) {
	if ptr == nil {
		return Unknown, false
	}
	k, _, err := ptr.ParentAndKind(n)
	if err != nil {
		if errors.Is(err, ptrmap.ErrUnavailable) {
			return Unknown, false
		}
		return Unknown, false
	}
	switch k {
	case ptrmap.KindFreePage:
		return FreelistLeaf, true
	case ptrmap.KindOverflow1, ptrmap.KindOverflow2:
		return Overflow, true
	default:
		return Unknown, true
	}
}

func orUnknown(have bool, k Kind) Kind {
	if !have {
		return Unknown
	}
	return k
}

// disagree reports whether the non-Unknown sources present for a page
// named conflicting kinds.
func disagree(haveBT bool, bt Kind, havePtr bool, pt Kind, fl Kind) bool {
	seen := make(map[Kind]bool)
	if haveBT {
		seen[bt] = true
	}
	if havePtr && pt != Unknown {
		seen[pt] = true
	}
	if fl != Unknown {
		seen[fl] = true
	}
	return len(seen) > 1
}
