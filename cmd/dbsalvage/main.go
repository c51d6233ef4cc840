// Command dbsalvage is a forensic recovery tool for the SQLite on-disk
// page format: it walks freeblocks and free-list leaves left behind by
// ordinary DELETE statements and reconstructs rows a live connection to
// the database would never show you.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/lindeneg/dbsalvage/internal/adapter/csvout"
	"github.com/lindeneg/dbsalvage/internal/adapter/grepout"
	"github.com/lindeneg/dbsalvage/internal/adapter/undelete"
	"github.com/lindeneg/dbsalvage/internal/btree"
	"github.com/lindeneg/dbsalvage/internal/dbformat"
	"github.com/lindeneg/dbsalvage/internal/heuristic"
	"github.com/lindeneg/dbsalvage/internal/logging"
	"github.com/lindeneg/dbsalvage/internal/pagecache"
	"github.com/lindeneg/dbsalvage/internal/pageclass"
	"github.com/lindeneg/dbsalvage/internal/ptrmap"
	"github.com/lindeneg/dbsalvage/internal/recovery"
)

// ExitCode carries the process exit status back from whichever
// subcommand ran, per the tool's 0/1/2/3 exit-code contract.
type ExitCode struct {
	Code int
}

// CLI defines the command-line interface for dbsalvage.
var CLI struct {
	LogFormat  string `name:"log-format" enum:"text,json" default:"text" help:"Log output format (text or json)."`
	Verbose    bool   `short:"v" help:"Enable debug-level logging."`
	Heuristics string `help:"Path to the heuristics YAML file (defaults to \${config_dir}/dbsalvage/heuristics.yaml)." type:"path"`

	DBInfo   DBInfoCmd   `cmd:"" name:"dbinfo" help:"Print header, page count, and table summary without recovering anything."`
	CSV      CSVCmd      `cmd:"" help:"Recover deleted rows and write them as per-table CSV files."`
	Undelete UndeleteCmd `cmd:"" help:"Recover deleted rows into a fresh sibling SQLite database."`
	Grep     GrepCmd     `cmd:"" help:"Search freeblocks and free-list leaves for a raw byte pattern."`
}

func logger() *slog.Logger {
	return logging.New(logging.ParseFormat(CLI.LogFormat), CLI.Verbose)
}

// heuristicsPath resolves the heuristics file location: the --heuristics
// flag if given, else \${os.UserConfigDir()}/dbsalvage/heuristics.yaml.
func heuristicsPath() (string, error) {
	if CLI.Heuristics != "" {
		return CLI.Heuristics, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "dbsalvage", "heuristics.yaml"), nil
}

func loadHeuristics() (*heuristic.Engine, error) {
	path, err := heuristicsPath()
	if err != nil {
		return nil, err
	}
	return heuristic.Load(path)
}

// DBInfoCmd prints header and schema information, generalizing the
// teacher's `.dbinfo`/`.tables` REPL commands into a subcommand.
type DBInfoCmd struct {
	DB string `arg:"" type:"existingfile" help:"Path to the SQLite database file."`
}

func (c *DBInfoCmd) Run(ec *ExitCode) error {
	cache, err := pagecache.Open(c.DB)
	if err != nil {
		ec.Code = 1
		return err
	}
	defer cache.Close()

	hdr := cache.Header()
	tables, err := btree.ReadSchema(cache, hdr, logger())
	if err != nil {
		ec.Code = 1
		return err
	}

	fmt.Printf("page size:       %d\n", hdr.PageSize)
	fmt.Printf("page count:      %d\n", hdr.PageCount)
	fmt.Printf("usable size:     %d\n", hdr.UsablePageSize())
	fmt.Printf("text encoding:   %d\n", hdr.TextEncoding)
	fmt.Printf("auto-vacuum:     %v\n", hdr.AutoVacuum())
	fmt.Printf("freelist pages:  %d\n", hdr.FreelistPageCount)
	fmt.Printf("tables:          %d\n", len(tables))
	for _, t := range tables {
		fmt.Printf("  %-20s root page %d, %d column(s)\n", t.Name, t.RootPage, len(t.Columns))
	}

	printClassification(cache, hdr, tables)

	ec.Code = 0
	return nil
}

// printClassification cross-checks ptrmap, B-tree-reachability, and
// free-list-reachability evidence for every page in the file and reports
// a per-kind tally plus any disagreements, per the page classifier's
// cross-check design.
func printClassification(cache *pagecache.Cache, hdr *dbformat.Header, tables []btree.TableInfo) {
	ptr := ptrmap.New(cache, hdr.PageSize, hdr.UsablePageSize(), hdr.AutoVacuum())

	roots := make([]uint32, len(tables))
	for i, t := range tables {
		roots[i] = t.RootPage
	}
	btreeKinds := btree.CollectKinds(cache, roots)

	trunks, leaves, err := pageclass.FreelistPages(cache, hdr.FirstFreelistTrunk)
	if err != nil {
		fmt.Printf("free-list walk failed: %v\n", err)
	}

	results, disagreements := pageclass.Classify(hdr.PageCount, ptr, btreeKinds, trunks, leaves)

	counts := make(map[pageclass.Kind]int)
	for _, r := range results {
		counts[r.Kind]++
	}

	fmt.Println("page classification:")
	for _, k := range []pageclass.Kind{
		pageclass.TableLeaf, pageclass.TableInterior, pageclass.IndexLeaf, pageclass.IndexInterior,
		pageclass.PtrMap, pageclass.FreelistTrunk, pageclass.FreelistLeaf, pageclass.Overflow, pageclass.Unknown,
	} {
		if counts[k] > 0 {
			fmt.Printf("  %-14s %d\n", k, counts[k])
		}
	}
	if len(disagreements) > 0 {
		fmt.Printf("classification disagreements: %d\n", len(disagreements))
		for _, d := range disagreements {
			fmt.Printf("  page %d: btree=%s ptrmap=%s freelist=%s\n", d.Page, d.FromBT, d.FromPtr, d.FromFL)
		}
	}
}

// CSVCmd recovers deleted rows and writes one CSV file per table.
type CSVCmd struct {
	DB          string `arg:"" type:"existingfile" help:"Path to the SQLite database file."`
	Out         string `arg:"" type:"path" help:"Output directory for per-table CSV files."`
	Table       string `help:"Only recover this table."`
	IncludeLive bool   `name:"include-live" help:"Include rows whose bytes also match a live cell."`
	Stats       bool   `help:"Print recovery statistics to stderr."`
	JSON        bool   `help:"Print the recovery report as JSON to stdout, instead of the --stats text summary."`
}

func (c *CSVCmd) Run(ec *ExitCode) error {
	report, err := runRecovery(c.DB, func(tables []btree.TableInfo) (recovery.RowSink, func() error, error) {
		w := csvout.NewWriter(c.Out, c.Table, c.IncludeLive)
		return w, w.Close, nil
	}, c.IncludeLive)
	if err != nil {
		ec.Code = exitCodeForError(err)
		return err
	}
	if c.JSON {
		if err := printReportJSON(report); err != nil {
			ec.Code = 1
			return err
		}
	} else if c.Stats {
		printStats(report.Stats)
	}
	ec.Code = exitCodeForRows(report.Stats.RowsRecovered)
	return nil
}

// UndeleteCmd recovers deleted rows into a fresh sibling SQLite database.
type UndeleteCmd struct {
	DB          string `arg:"" type:"existingfile" help:"Path to the SQLite database file."`
	Out         string `arg:"" type:"path" help:"Path to the output SQLite database (overwritten if it exists)."`
	IncludeLive bool   `name:"include-live" help:"Include rows whose bytes also match a live cell."`
	Stats       bool   `help:"Print recovery statistics to stderr."`
}

func (c *UndeleteCmd) Run(ec *ExitCode) error {
	var uw *undelete.Writer
	report, err := runRecovery(c.DB, func(tables []btree.TableInfo) (recovery.RowSink, func() error, error) {
		w, err := undelete.Open(c.Out, tables, c.IncludeLive)
		if err != nil {
			return nil, nil, err
		}
		uw = w
		return w, w.Close, nil
	}, c.IncludeLive)
	if err != nil {
		ec.Code = exitCodeForError(err)
		return err
	}
	if c.Stats {
		printStats(report.Stats)
	}
	inserted := 0
	if uw != nil {
		inserted = uw.Stats().Inserted
	}
	ec.Code = exitCodeForRows(inserted)
	return nil
}

// GrepCmd searches unallocated space for a raw byte pattern, independent
// of any table schema or heuristics configuration.
type GrepCmd struct {
	DB      string `arg:"" type:"existingfile" help:"Path to the SQLite database file."`
	Pattern string `arg:"" help:"Byte-level regular expression (\\xNN escapes supported)."`
	JSON    bool   `help:"Output matches as JSON lines."`
}

func (c *GrepCmd) Run(ec *ExitCode) error {
	cache, err := pagecache.Open(c.DB)
	if err != nil {
		ec.Code = 1
		return err
	}
	defer cache.Close()

	re, err := grepout.Compile(c.Pattern)
	if err != nil {
		ec.Code = 3
		return err
	}

	matches, err := grepout.Scan(cache, cache.Header(), re)
	if err != nil {
		ec.Code = 1
		return err
	}

	for _, m := range matches {
		if c.JSON {
			fmt.Printf("{\"page\":%d,\"offset\":%d,\"bytes\":\"%x\"}\n", m.Page, m.Offset, m.Bytes)
		} else {
			fmt.Printf("page %d offset %d: %x\n", m.Page, m.Offset, m.Bytes)
		}
	}

	ec.Code = exitCodeForRows(len(matches))
	return nil
}

// runRecovery is the shared open-schema-orchestrate-sink pipeline that
// every recovery-producing subcommand (csv, undelete) drives.
func runRecovery(dbPath string, makeSink func(tables []btree.TableInfo) (recovery.RowSink, func() error, error), includeLive bool) (*recovery.Report, error) {
	cache, err := pagecache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	engine, err := loadHeuristics()
	if err != nil {
		return nil, err
	}

	tables, err := btree.ReadSchema(cache, cache.Header(), logger())
	if err != nil {
		return nil, err
	}

	sink, closeSink, err := makeSink(tables)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	orch := recovery.New(cache, cache.Header(), engine, logger(), includeLive)
	return orch.Run(context.Background(), sink)
}

func exitCodeForRows(n int) int {
	if n == 0 {
		return 2
	}
	return 0
}

// exitCodeForError maps a recovery-setup failure to exit code 3
// (configuration error, i.e. a malformed heuristics file) or 1 (fatal).
func exitCodeForError(err error) int {
	if errors.Is(err, heuristic.ErrConfigError) {
		return 3
	}
	return 1
}

// printReportJSON writes the full recovery report (stats plus any
// diagnostic slices) as a single JSON object to stdout, for scripted
// forensic pipelines that parse dbsalvage's output rather than read it.
func printReportJSON(r *recovery.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func printStats(s recovery.Stats) {
	fmt.Fprintf(os.Stderr, "candidates tried:       %d\n", s.CandidatesTried)
	fmt.Fprintf(os.Stderr, "rejected (bad header):  %d\n", s.RejectedBadHeader)
	fmt.Fprintf(os.Stderr, "rows recovered:         %d\n", s.RowsRecovered)
	fmt.Fprintf(os.Stderr, "rows suppressed (live): %d\n", s.RowsSuppressedLikelyLive)
	if len(s.NoHeuristicTables) > 0 {
		fmt.Fprintf(os.Stderr, "tables with no heuristic rules: %v\n", s.NoHeuristicTables)
	}
	if len(s.CorruptTrees) > 0 {
		fmt.Fprintf(os.Stderr, "corrupt table trees (root pages): %v\n", s.CorruptTrees)
	}
	if len(s.MalformedFreeblockPages) > 0 {
		fmt.Fprintf(os.Stderr, "malformed freeblock chains (pages): %v\n", s.MalformedFreeblockPages)
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("dbsalvage"),
		kong.Description("Forensic recovery of deleted rows from a SQLite database's on-disk page format."),
		kong.UsageOnError(),
	)

	var ec ExitCode
	if err := ctx.Run(&ec); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if ec.Code == 0 {
			ec.Code = 1
		}
	}
	os.Exit(ec.Code)
}
