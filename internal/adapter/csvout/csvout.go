// Package csvout writes recovered rows as CSV, one file per table, the
// way the pack's tinySQL exporter renders a result set.
package csvout

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lindeneg/dbsalvage/internal/record"
	"github.com/lindeneg/dbsalvage/internal/recovery"
)

// Writer is a recovery.RowSink that fans recovered rows out to one CSV
// file per table under Dir, skipping LikelyLive rows unless IncludeLive.
type Writer struct {
	Dir         string
	Table       string // if set, only this table's rows are written
	IncludeLive bool

	files   map[string]*os.File
	writers map[string]*csv.Writer
	headers map[string]bool
}

// NewWriter constructs a Writer that creates files lazily as each table's
// first row arrives.
func NewWriter(dir, table string, includeLive bool) *Writer {
	return &Writer{
		Dir:         dir,
		Table:       table,
		IncludeLive: includeLive,
		files:       make(map[string]*os.File),
		writers:     make(map[string]*csv.Writer),
		headers:     make(map[string]bool),
	}
}

// Emit implements recovery.RowSink.
func (w *Writer) Emit(row recovery.RecoveredRow) error {
	if w.Table != "" && row.Table != w.Table {
		return nil
	}
	if row.LikelyLive && !w.IncludeLive {
		return nil
	}

	cw, err := w.writerFor(row.Table)
	if err != nil {
		return err
	}
	if !w.headers[row.Table] {
		header := make([]string, 0, len(row.Columns)+2)
		header = append(header, "_source", "_page", "_offset")
		for _, c := range row.Columns {
			header = append(header, c.Name)
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		w.headers[row.Table] = true
	}

	record := make([]string, 0, len(row.Columns)+3)
	record = append(record, row.Source.String(), strconv.FormatUint(uint64(row.Page), 10), strconv.Itoa(row.Offset))
	for _, c := range row.Columns {
		record = append(record, valueToString(c.Value))
	}
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writerFor(table string) (*csv.Writer, error) {
	if cw, ok := w.writers[table]; ok {
		return cw, nil
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvout: creating output dir: %w", err)
	}
	path := filepath.Join(w.Dir, table+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csvout: creating %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	w.files[table] = f
	w.writers[table] = cw
	return cw, nil
}

// Close flushes and closes every file this Writer opened.
func (w *Writer) Close() error {
	var firstErr error
	for table, cw := range w.writers {
		cw.Flush()
		if err := cw.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := w.files[table].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func valueToString(v record.Value) string {
	if v.Null {
		return ""
	}
	switch v.Serial.Kind() {
	case record.KindInt, record.KindZero, record.KindOne:
		return strconv.FormatInt(v.Int, 10)
	case record.KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case record.KindBlob:
		return fmt.Sprintf("%x", v.Blob)
	case record.KindText:
		return v.Text
	default:
		return ""
	}
}
