// Package heuristic loads per-table byte-pattern rules and, given a byte
// range pulled from a freeblock or free-list leaf, finds offsets where a
// plausible deleted-record header begins.
package heuristic

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrConfigError is returned for a present-but-malformed heuristics file.
// A missing file is not an error: it is equivalent to an empty mapping.
var ErrConfigError = errors.New("heuristic: invalid heuristics configuration")

// Rule is one compiled byte-pattern rule: a match at offset m within a
// scanned range designates m + Offset (also relative to that range) as a
// candidate record-header start.
type Rule struct {
	Pattern *regexp.Regexp
	Offset  int
}

// Engine holds every table's compiled rules.
type Engine struct {
	rules map[string][]Rule
}

type fileConfig struct {
	Tables map[string][]ruleConfig `yaml:"tables"`
}

type ruleConfig struct {
	Pattern string `yaml:"pattern"`
	Offset  int    `yaml:"offset"`
}

// Load reads a heuristics YAML file. A missing file yields an empty,
// usable Engine rather than an error, matching the format's "absent file
// means empty mapping" rule.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{rules: map[string][]Rule{}}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfigError, path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Engine, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigError, err)
	}

	rules := make(map[string][]Rule, len(cfg.Tables))
	for table, entries := range cfg.Tables {
		for _, e := range entries {
			// The regexp package's RE2 syntax already parses \xNN as a
			// literal byte escape, so patterns with \xNN pass straight
			// through to regexp.Compile unmodified; no separate
			// preprocessing step is needed.
			pat, err := regexp.Compile(e.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: table %q pattern %q: %v", ErrConfigError, table, e.Pattern, err)
			}
			rules[table] = append(rules[table], Rule{Pattern: pat, Offset: e.Offset})
		}
	}
	return &Engine{rules: rules}, nil
}

// HasRules reports whether table has at least one configured rule; the
// orchestrator uses this to decide whether to report NoHeuristic.
func (e *Engine) HasRules(table string) bool {
	return len(e.rules[table]) > 0
}

// Candidates returns every deduplicated, ascending candidate
// record-header offset within data for table's rules. FindAllIndex
// operates directly on the byte slice, so no UTF-8 decoding of the
// scanned bytes ever occurs.
func (e *Engine) Candidates(table string, data []byte) []int {
	seen := make(map[int]bool)
	for _, rule := range e.rules[table] {
		for _, m := range rule.Pattern.FindAllIndex(data, -1) {
			candidate := m[0] + rule.Offset
			if candidate >= 0 && candidate < len(data) {
				seen[candidate] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
