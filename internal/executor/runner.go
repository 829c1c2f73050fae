package executor

import (
	"context"
	"database/sql"
)

// SQLRunner applies one step's statements inside a single transaction.
// Injecting it keeps retry and rollback logic testable without a database.
type SQLRunner interface {
	RunStatements(ctx context.Context, stmts []string) error
}

type txRunner struct {
	db *sql.DB
}

// NewTxRunner wraps an open handle in the production runner: BEGIN, apply
// every statement of the step, COMMIT; any failure rolls the step back.
func NewTxRunner(db *sql.DB) SQLRunner {
	return &txRunner{db: db}
}

func (r *txRunner) RunStatements(ctx context.Context, stmts []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback() // nolint:errcheck
			return err
		}
	}
	return tx.Commit()
}
