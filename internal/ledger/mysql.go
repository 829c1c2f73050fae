package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type mysqlStore struct {
	db *sql.DB
}

func (s *mysqlStore) Ensure(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id bigint AUTO_INCREMENT PRIMARY KEY,
	execution_id varchar(36) NOT NULL,
	status varchar(32) NOT NULL,
	plan_summary text NOT NULL,
	results text NOT NULL,
	duration_ms bigint NOT NULL,
	backup_path varchar(512),
	dry_run tinyint(1) NOT NULL DEFAULT 0,
	error_message text,
	created_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY schema_migration_executions_id_uq (execution_id),
	INDEX schema_migration_executions_created_idx (created_at)
) ENGINE=InnoDB;
`, "`"+Table+"`")
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *mysqlStore) Insert(ctx context.Context, rec ExecutionRecord) error {
	summary, results, err := marshalPayload(rec)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s
		(execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`, "`"+Table+"`")
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

func (s *mysqlStore) Get(ctx context.Context, id uuid.UUID) (*ExecutionRecord, error) {
	stmt := fmt.Sprintf(`SELECT execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at
FROM %s WHERE execution_id=?`, "`"+Table+"`")
	rec, err := scanRecord(s.db.QueryRowContext(ctx, stmt, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return rec, err
}

func (s *mysqlStore) List(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	stmt := fmt.Sprintf(`SELECT execution_id, status, plan_summary, results, duration_ms, backup_path, dry_run, error_message, created_at
FROM %s
ORDER BY created_at DESC, id DESC
LIMIT ?`, "`"+Table+"`")
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
