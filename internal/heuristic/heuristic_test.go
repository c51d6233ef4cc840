package heuristic

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyEngine(t *testing.T) {
	e, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.False(t, e.HasRules("t1"))
	assert.Empty(t, e.Candidates("t1", []byte("anything")))
}

func TestParseAndMatchScenarioFromSpec(t *testing.T) {
	yamlDoc := []byte(`
tables:
  t1:
    - pattern: "\x03\x01\x17"
      offset: 0
`)
	e, err := parse(yamlDoc)
	require.NoError(t, err)
	require.True(t, e.HasRules("t1"))

	data := []byte{0xAA, 0xAA, 0x03, 0x01, 0x17, 'y', 'e', 's', 0xBB}
	got := e.Candidates("t1", data)
	assert.Equal(t, []int{2}, got)
}

func TestCandidatesAppliesOffset(t *testing.T) {
	yamlDoc := []byte(`
tables:
  t1:
    - pattern: "MARK"
      offset: 4
`)
	e, err := parse(yamlDoc)
	require.NoError(t, err)
	data := []byte("xxMARKyyyy")
	got := e.Candidates("t1", data)
	assert.Equal(t, []int{6}, got)
}

func TestCandidatesDedupAndSort(t *testing.T) {
	yamlDoc := []byte(`
tables:
  t1:
    - pattern: "A"
      offset: 0
    - pattern: "B"
      offset: -1
`)
	e, err := parse(yamlDoc)
	require.NoError(t, err)
	data := []byte("xAxBx")
	got := e.Candidates("t1", data)
	assert.Equal(t, []int{1, 2}, got)
}

func TestCandidatesDropsOutOfRangeOffsets(t *testing.T) {
	yamlDoc := []byte(`
tables:
  t1:
    - pattern: "Z"
      offset: -100
`)
	e, err := parse(yamlDoc)
	require.NoError(t, err)
	data := []byte("xZx")
	got := e.Candidates("t1", data)
	assert.Empty(t, got)
}

func TestParseRejectsMalformedPattern(t *testing.T) {
	yamlDoc := []byte(`
tables:
  t1:
    - pattern: "("
      offset: 0
`)
	_, err := parse(yamlDoc)
	require.ErrorIs(t, err, ErrConfigError)
}

func TestNoRulesMeansNoCandidates(t *testing.T) {
	e, err := parse([]byte(`tables: {}`))
	require.NoError(t, err)
	assert.False(t, e.HasRules("unknown_table"))
	assert.Empty(t, e.Candidates("unknown_table", []byte("abc")))
}
