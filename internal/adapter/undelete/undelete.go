// Package undelete writes recovered rows into a fresh sibling SQLite
// database, created from the recovered schema's own CREATE TABLE
// statements, the way sqlite-repair-go's initOutputDB/tryRecoverRow
// pair does it.
package undelete

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lindeneg/dbsalvage/internal/btree"
	"github.com/lindeneg/dbsalvage/internal/record"
	"github.com/lindeneg/dbsalvage/internal/recovery"
)

// Writer is a recovery.RowSink that inserts recovered rows into a new
// SQLite database at Path, one INSERT OR IGNORE per row.
type Writer struct {
	Path        string
	IncludeLive bool

	db       *sql.DB
	tables   map[string]btree.TableInfo
	inserted int
	skipped  int
	failed   int
}

// Open creates (overwriting) the output database at path and populates it
// with CREATE TABLE statements for every recovered table schema.
func Open(path string, tables []btree.TableInfo, includeLive bool) (*Writer, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("undelete: removing existing output: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("undelete: opening output db: %w", err)
	}

	byName := make(map[string]btree.TableInfo, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
		if strings.TrimSpace(t.SQL) == "" {
			continue
		}
		if _, err := db.Exec(t.SQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("undelete: creating table %s: %w", t.Name, err)
		}
	}

	return &Writer{Path: path, IncludeLive: includeLive, db: db, tables: byName}, nil
}

// Emit implements recovery.RowSink.
func (w *Writer) Emit(row recovery.RecoveredRow) error {
	if row.LikelyLive && !w.IncludeLive {
		return nil
	}
	if _, ok := w.tables[row.Table]; !ok {
		w.skipped++
		return nil
	}

	values := make([]any, len(row.Columns))
	for i, c := range row.Columns {
		values[i] = columnValue(c.Value)
	}

	placeholders := make([]string, len(values))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s VALUES (%s)", quoteIdentifier(row.Table), strings.Join(placeholders, ", "))
	if _, err := w.db.Exec(query, values...); err != nil {
		w.failed++
		return nil // a single malformed row must not abort the whole run
	}
	w.inserted++
	return nil
}

// quoteIdentifier wraps name in double quotes, SQLite's identifier-quoting
// syntax, doubling any embedded quote. row.Table comes from a recovered
// sqlite_schema entry in a damaged file, not a trusted source, so it must
// never be interpolated into SQL unquoted.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnValue(v record.Value) any {
	if v.Null {
		return nil
	}
	switch v.Serial.Kind() {
	case record.KindInt:
		return v.Int
	case record.KindZero:
		return int64(0)
	case record.KindOne:
		return int64(1)
	case record.KindFloat:
		return v.Float
	case record.KindBlob:
		return v.Blob
	case record.KindText:
		return v.Text
	default:
		return nil
	}
}

// Stats reports how many rows were inserted, skipped (unknown table), or
// rejected by the output database (typically a column-count/type mismatch
// against the recovered schema).
type Stats struct {
	Inserted int
	Skipped  int
	Failed   int
}

func (w *Writer) Stats() Stats {
	return Stats{Inserted: w.inserted, Skipped: w.skipped, Failed: w.failed}
}

// Close closes the output database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}
