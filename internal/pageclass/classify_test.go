package pageclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindeneg/dbsalvage/internal/ptrmap"
)

func TestClassifyUsesBTreeEvidenceFirst(t *testing.T) {
	ptr := ptrmap.New(fakeFLSource{pages: map[uint32][]byte{}}, 4096, 4096, false)
	btreeKinds := map[uint32]Kind{1: TableLeaf, 2: TableInterior}
	results, disagreements := Classify(3, ptr, btreeKinds, nil, nil)

	require.Empty(t, disagreements)
	require.Len(t, results, 3)
	assert.Equal(t, TableLeaf, results[0].Kind)
	assert.Equal(t, TableInterior, results[1].Kind)
	assert.Equal(t, Unknown, results[2].Kind)
}

func TestClassifyFreelistFallback(t *testing.T) {
	ptr := ptrmap.New(fakeFLSource{pages: map[uint32][]byte{}}, 4096, 4096, false)
	results, disagreements := Classify(3, ptr, map[uint32]Kind{}, []uint32{2}, []uint32{3})

	require.Empty(t, disagreements)
	assert.Equal(t, FreelistTrunk, results[1].Kind)
	assert.Equal(t, FreelistLeaf, results[2].Kind)
}

func TestClassifyRecordsDisagreement(t *testing.T) {
	ptr := ptrmap.New(fakeFLSource{pages: map[uint32][]byte{}}, 4096, 4096, false)
	// page 2 is both b-tree reachable as a table leaf AND reported by the
	// free-list walk as a leaf -- contradictory evidence.
	btreeKinds := map[uint32]Kind{2: TableLeaf}
	results, disagreements := Classify(2, ptr, btreeKinds, nil, []uint32{2})

	require.Len(t, disagreements, 1)
	assert.Equal(t, uint32(2), disagreements[0].Page)
	assert.Equal(t, TableLeaf, results[1].Kind) // b-tree evidence still wins
}
