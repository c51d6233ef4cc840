// Package recovery ties the page classifier, B-tree walker, record
// decoder, freeblock scanner, and heuristics engine together into the
// per-table deleted-row recovery pass.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lindeneg/dbsalvage/internal/btree"
	"github.com/lindeneg/dbsalvage/internal/dbformat"
	"github.com/lindeneg/dbsalvage/internal/freeblock"
	"github.com/lindeneg/dbsalvage/internal/heuristic"
	"github.com/lindeneg/dbsalvage/internal/pageclass"
	"github.com/lindeneg/dbsalvage/internal/ptrmap"
	"github.com/lindeneg/dbsalvage/internal/record"
)

// PageSource reads a page's raw bytes by page number, satisfied by
// *pagecache.Cache.
type PageSource interface {
	Page(n uint32) ([]byte, error)
}

// candidateRange is one byte range to scan for deleted-record candidates.
type candidateRange struct {
	Source SourceKind
	Page   uint32
	Start  int
	End    int
}

// Orchestrator runs the recovery pass described in spec.md §4.10.
type Orchestrator struct {
	src         PageSource
	header      *dbformat.Header
	engine      *heuristic.Engine
	logger      *slog.Logger
	includeLive bool
}

// New constructs an Orchestrator. logger may be nil, in which case
// slog.Default() is used.
func New(src PageSource, header *dbformat.Header, engine *heuristic.Engine, logger *slog.Logger, includeLive bool) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{src: src, header: header, engine: engine, logger: logger, includeLive: includeLive}
}

// Run walks every user table's schema entry, collects candidate deleted-row
// ranges, applies heuristics, decodes survivors, and streams them to sink.
func (o *Orchestrator) Run(ctx context.Context, sink RowSink) (*Report, error) {
	tables, err := btree.ReadSchema(o.src, o.header, o.logger)
	if err != nil {
		return nil, fmt.Errorf("recovery: reading schema: %w", err)
	}

	ptr := ptrmap.New(o.src, o.header.PageSize, o.header.UsablePageSize(), o.header.AutoVacuum())
	freelistTrunks, freelistLeaves, err := pageclass.FreelistPages(o.src, o.header.FirstFreelistTrunk)
	if err != nil {
		o.logger.Warn("free-list walk failed", "error", err)
	}

	limits := record.Limits{
		UsableSize: int(o.header.UsablePageSize()),
		MaxLocal:   o.header.OverflowThreshold(),
		MinLocal:   o.header.MinLocal(),
	}

	report := &Report{}
	seen := make(map[uint32]map[int]bool) // (page, offset) global dedup

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o.runTable(ctx, table, limits, ptr, freelistLeaves, freelistTrunks, sink, &report.Stats, seen)
	}
	return report, nil
}

func (o *Orchestrator) runTable(
	ctx context.Context,
	table btree.TableInfo,
	limits record.Limits,
	ptr *ptrmap.Reader,
	freelistLeaves, freelistTrunks []uint32,
	sink RowSink,
	stats *Stats,
	seen map[uint32]map[int]bool,
) {
	w := btree.NewWalker(o.src)
	leaves, err := w.LeafPages(table.RootPage)
	if err != nil && errors.Is(err, btree.ErrCorruptTree) {
		o.logger.Warn("corrupt table tree", "table", table.Name, "error", err)
		stats.CorruptTrees = append(stats.CorruptTrees, table.RootPage)
	}

	liveHashes := make(map[string]bool)
	var ranges []candidateRange

	for _, pageNum := range leaves {
		page, err := o.src.Page(pageNum)
		if err != nil {
			continue
		}
		offset := 0
		if pageNum == 1 {
			offset = dbformat.HeaderSize
		}
		ph, err := pageclass.ParseHeader(page, offset)
		if err != nil {
			continue
		}
		ptrs, err := pageclass.CellPointers(page, offset, ph)
		if err == nil {
			for _, p := range ptrs {
				cell, err := record.DecodeTableLeafCell(page, int(p), limits, o.src)
				if err != nil {
					continue
				}
				liveHashes[string(cell.Payload)] = true
			}
		}

		fbRanges, fbErr := freeblock.Scan(page, offset, ph)
		if fbErr != nil {
			o.logger.Warn("malformed freeblock chain", "table", table.Name, "page", pageNum, "error", fbErr)
			stats.MalformedFreeblockPages = append(stats.MalformedFreeblockPages, pageNum)
		}
		for _, r := range fbRanges {
			ranges = append(ranges, candidateRange{Source: SourceLiveFreeblock, Page: pageNum, Start: r.Start, End: r.End})
		}
	}

	for _, fl := range freelistLeaves {
		if !o.belongsToTable(ptr, fl, table.RootPage) {
			continue
		}
		page, err := o.src.Page(fl)
		if err != nil {
			continue
		}
		ranges = append(ranges, candidateRange{Source: SourceFreelistLeaf, Page: fl, Start: 0, End: len(page)})
	}

	if !o.engine.HasRules(table.Name) {
		stats.NoHeuristicTables = append(stats.NoHeuristicTables, table.Name)
		return
	}

	for _, r := range ranges {
		o.scanRange(table, r, limits, liveHashes, sink, stats, seen)
	}
}

// belongsToTable reports whether free-list leaf page fl should be scanned
// on behalf of table rooted at rootPage. When ptrmap is unavailable
// (non-auto-vacuum files), every leaf is attempted against every table.
func (o *Orchestrator) belongsToTable(ptr *ptrmap.Reader, fl, rootPage uint32) bool {
	if !o.header.AutoVacuum() {
		return true
	}
	kind, parent, err := ptr.ParentAndKind(fl)
	if err != nil {
		return false
	}
	return kind == ptrmap.KindFreePage && parent == rootPage
}

func (o *Orchestrator) scanRange(
	table btree.TableInfo,
	r candidateRange,
	limits record.Limits,
	liveHashes map[string]bool,
	sink RowSink,
	stats *Stats,
	seen map[uint32]map[int]bool,
) {
	page, err := o.src.Page(r.Page)
	if err != nil || r.Start < 0 || r.End > len(page) || r.Start >= r.End {
		return
	}
	window := page[r.Start:r.End]
	candidates := o.engine.Candidates(table.Name, window)
	sort.Ints(candidates)

	cursor := 0
	for _, m := range candidates {
		if m < cursor {
			continue // overlapped by a previously accepted record; skip
		}
		absOffset := r.Start + m
		if seen[r.Page] != nil && seen[r.Page][absOffset] {
			continue
		}

		avail := page[r.Start+m : r.End]
		stats.CandidatesTried++
		rec, err := record.DecodePayload(avail, o.header.TextEncoding, len(table.Columns))
		if err != nil {
			if errors.Is(err, record.ErrBadHeader) {
				stats.RejectedBadHeader++
			}
			continue
		}

		consumed := int(rec.HeaderLength)
		for _, v := range rec.Values {
			consumed += int(v.Serial.Size)
		}
		cursor = m + consumed

		row := RecoveredRow{
			Source: r.Source,
			Table:  table.Name,
			Page:   r.Page,
			Offset: absOffset,
		}
		for i, v := range rec.Values {
			name := fmt.Sprintf("col%d", i)
			if i < len(table.Columns) {
				name = table.Columns[i]
			}
			row.Columns = append(row.Columns, ColumnValue{Name: name, Value: v})
		}

		rawBytes := string(avail[:consumed])
		if liveHashes[rawBytes] {
			row.LikelyLive = true
			stats.RowsSuppressedLikelyLive++
			if !o.includeLive {
				markSeen(seen, r.Page, absOffset)
				continue
			}
		}

		markSeen(seen, r.Page, absOffset)
		stats.RowsRecovered++
		if err := sink.Emit(row); err != nil {
			o.logger.Warn("row sink rejected row", "table", table.Name, "page", r.Page, "offset", absOffset, "error", err)
		}
	}
}

func markSeen(seen map[uint32]map[int]bool, page uint32, offset int) {
	if seen[page] == nil {
		seen[page] = make(map[int]bool)
	}
	seen[page][offset] = true
}
