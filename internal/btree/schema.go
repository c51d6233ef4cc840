package btree

import (
	"fmt"
	"log/slog"

	"github.com/lindeneg/dbsalvage/internal/dbformat"
	"github.com/lindeneg/dbsalvage/internal/pageclass"
	"github.com/lindeneg/dbsalvage/internal/record"
)

// TableInfo describes one table entry recorded in sqlite_schema (the
// format's own bookkeeping table, always rooted at page 1).
type TableInfo struct {
	Name     string
	RootPage uint32
	SQL      string
	Columns  []string
}

// ReadSchema decodes every "table" row out of sqlite_schema, walking its
// B-tree from page 1 and parsing each row's CREATE TABLE SQL text for an
// ordered column-name list. A schema row that fails to decode is logged
// and skipped rather than aborting the run: logger may be nil, in which
// case slog.Default() is used.
func ReadSchema(src PageSource, hdr *dbformat.Header, logger *slog.Logger) ([]TableInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := NewWalker(src)
	leaves, err := w.LeafPages(1)
	if err != nil {
		return nil, fmt.Errorf("btree: walking sqlite_schema: %w", err)
	}

	limits := record.Limits{
		UsableSize: int(hdr.UsablePageSize()),
		MaxLocal:   hdr.OverflowThreshold(),
		MinLocal:   hdr.MinLocal(),
	}

	var tables []TableInfo
	for _, pageNum := range leaves {
		page, err := src.Page(pageNum)
		if err != nil {
			logger.Warn("sqlite_schema page unreadable, skipping", "page", pageNum, "error", err)
			continue
		}
		offset := 0
		if pageNum == 1 {
			offset = 100
		}
		ph, err := pageclass.ParseHeader(page, offset)
		if err != nil {
			logger.Warn("sqlite_schema page header unparsable, skipping", "page", pageNum, "error", err)
			continue
		}
		ptrs, err := pageclass.CellPointers(page, offset, ph)
		if err != nil {
			logger.Warn("sqlite_schema page cell pointers unparsable, skipping", "page", pageNum, "error", err)
			continue
		}

		for _, p := range ptrs {
			cell, err := record.DecodeTableLeafCell(page, int(p), limits, src)
			if err != nil {
				logger.Warn("sqlite_schema cell decode failed, skipping entry", "page", pageNum, "offset", p, "error", err)
				continue
			}
			rec, err := record.DecodePayload(cell.Payload, hdr.TextEncoding, 0)
			if err != nil {
				logger.Warn("sqlite_schema row decode failed, skipping entry", "page", pageNum, "offset", p, "error", err)
				continue
			}
			t, ok := schemaRowToTable(rec)
			if ok {
				tables = append(tables, t)
			}
		}
	}
	return tables, nil
}

// schemaRowToTable converts a decoded sqlite_schema row into a TableInfo,
// reporting ok=false for rows that aren't a "table" entry (views, triggers,
// indices) or are missing the fields a table entry always carries.
func schemaRowToTable(rec *record.Record) (TableInfo, bool) {
	if len(rec.Values) < 5 {
		return TableInfo{}, false
	}
	if rec.Values[0].Null || rec.Values[0].Text != "table" {
		return TableInfo{}, false
	}
	name := rec.Values[1].Text
	if name == "" {
		return TableInfo{}, false
	}
	root := columnIntValue(rec.Values[3])
	sql := ""
	if !rec.Values[4].Null {
		sql = rec.Values[4].Text
	}
	return TableInfo{
		Name:     name,
		RootPage: uint32(root),
		SQL:      sql,
		Columns:  ParseColumnNames(sql),
	}, true
}

// columnIntValue reads an integer-shaped column value regardless of which
// of the format's several integer serial-type encodings produced it.
func columnIntValue(v record.Value) int64 {
	switch v.Serial.Kind() {
	case record.KindInt:
		return v.Int
	case record.KindOne:
		return 1
	default:
		return 0
	}
}
