package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type postgresStore struct {
	db *sql.DB
}

func (s *postgresStore) Ensure(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	execution_id varchar(36) NOT NULL UNIQUE,
	status varchar(32) NOT NULL,
	plan_summary text NOT NULL,
	results text NOT NULL,
	duration_ms bigint NOT NULL,
	backup_path varchar(512),
	dry_run boolean NOT NULL DEFAULT false,
	error_message text,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS schema_migration_executions_created_idx ON %s (created_at);
`, quoteIdent(Table), quoteIdent(Table))
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *postgresStore) Insert(ctx context.Context, rec ExecutionRecord) error {
	summary, results, err := marshalPayload(rec)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s
		(execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, quoteIdent(Table))
	_, err = s.db.ExecContext(ctx, stmt,
		rec.ID.String(),
		rec.Status,
		summary,
		results,
		rec.Duration.Milliseconds(),
		nullIfEmpty(rec.BackupPath),
		rec.DryRun,
		nullIfEmpty(rec.Error),
		rec.CreatedAt,
	)
	return err
}

func (s *postgresStore) Get(ctx context.Context, id uuid.UUID) (*ExecutionRecord, error) {
	stmt := fmt.Sprintf(`SELECT execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at
FROM %s WHERE execution_id=$1`, quoteIdent(Table))
	rec, err := scanRecord(s.db.QueryRowContext(ctx, stmt, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return rec, err
}

func (s *postgresStore) List(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	stmt := fmt.Sprintf(`SELECT execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at
FROM %s
ORDER BY created_at DESC, id DESC
LIMIT $1`, quoteIdent(Table))
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	var rawID string
	var summary, results []byte
	var durationMs int64
	var backupPath, errMsg sql.NullString
	if err := row.Scan(&rawID, &rec.Status, &summary, &results, &durationMs, &backupPath, &rec.DryRun, &errMsg, &rec.CreatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	rec.ID = id
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.BackupPath = backupPath.String
	rec.Error = errMsg.String
	if err := unmarshalPayload(&rec, summary, results); err != nil {
		return nil, err
	}
	return &rec, nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
