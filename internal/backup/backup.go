// Package backup captures a best-effort data export before a plan executes.
// It is advisory: restore is a manual operation, and the rollback plan
// remains the primary reversal mechanism.
package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chms_schema_engine/internal/dialect"
	"chms_schema_engine/internal/schema"
)

// Writer exports non-empty, non-system tables as JSON files under
// <root>/<executionID>/ together with a checksummed manifest.
type Writer struct {
	db      *sql.DB
	dialect dialect.Dialect
	root    string
}

// Manifest describes one captured backup.
type Manifest struct {
	ExecutionID string       `json:"execution_id"`
	Database    string       `json:"database"`
	CreatedAt   time.Time    `json:"created_at"`
	Tables      []TableEntry `json:"tables"`
}

// TableEntry is one exported table in the manifest.
type TableEntry struct {
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	File     string `json:"file"`
	Checksum string `json:"checksum"`
}

func New(db *sql.DB, d dialect.Dialect, root string) *Writer {
	return &Writer{db: db, dialect: d, root: root}
}

// Capture exports every non-empty, non-system table in the snapshot and
// returns the backup directory path.
func (w *Writer) Capture(ctx context.Context, snap schema.Snapshot, executionID string) (string, error) {
	dir := filepath.Join(w.root, executionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	manifest := Manifest{
		ExecutionID: executionID,
		Database:    snap.Database,
		CreatedAt:   time.Now().UTC(),
	}

	for _, t := range snap.Tables {
		if t.System || t.RowCount == 0 {
			continue
		}
		entry, err := w.exportTable(ctx, dir, t.Name)
		if err != nil {
			return "", fmt.Errorf("export table %s: %w", t.Name, err)
		}
		manifest.Tables = append(manifest.Tables, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return dir, nil
}

func (w *Writer) exportTable(ctx context.Context, dir, table string) (TableEntry, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", w.dialect.QuoteIdent(table)))
	if err != nil {
		return TableEntry{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return TableEntry{}, err
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return TableEntry{}, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return TableEntry{}, err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return TableEntry{}, err
	}
	file := table + ".json"
	if err := os.WriteFile(filepath.Join(dir, file), data, 0o644); err != nil {
		return TableEntry{}, err
	}

	sum := sha256.Sum256(data)
	return TableEntry{
		Name:     table,
		Rows:     len(records),
		File:     file,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
