// Package ledger persists one audit row per execution attempt in the target
// database itself. Records are insert-only: a retried re-run of the same
// logical plan produces a new record.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chms_schema_engine/internal/plan"
)

// Table is the ledger's own table name. The catalog flags it as a system
// entity so the planner never proposes dropping it.
const Table = "schema_migration_executions"

var ErrExecutionNotFound = errors.New("execution not found")

// StepResult is the persisted outcome of one plan step.
type StepResult struct {
	Index       int           `json:"index"`
	Kind        plan.OpKind   `json:"kind"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Attempts    int           `json:"attempts,omitempty"`
	Statements  []string      `json:"statements,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// ExecutionRecord is the audit row for one execution attempt.
type ExecutionRecord struct {
	ID         uuid.UUID     `json:"execution_id"`
	Status     string        `json:"status"`
	Summary    plan.Summary  `json:"plan_summary"`
	Results    []StepResult  `json:"results"`
	Duration   time.Duration `json:"duration"`
	BackupPath string        `json:"backup_path,omitempty"`
	DryRun     bool          `json:"dry_run"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store reads and writes execution records. It is injected into the
// executor so retry and rollback logic stays testable without a database.
type Store interface {
	Ensure(ctx context.Context) error
	Insert(ctx context.Context, rec ExecutionRecord) error
	Get(ctx context.Context, id uuid.UUID) (*ExecutionRecord, error)
	List(ctx context.Context, limit int) ([]ExecutionRecord, error)
}

// New returns the engine's ledger implementation over an open handle.
func New(engine string, db *sql.DB) (Store, error) {
	switch strings.ToLower(engine) {
	case "mysql":
		return &mysqlStore{db: db}, nil
	case "postgres":
		return &postgresStore{db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %s", engine)
	}
}

func marshalPayload(rec ExecutionRecord) (summary, results []byte, err error) {
	summary, err = json.Marshal(rec.Summary)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal plan summary: %w", err)
	}
	results, err = json.Marshal(rec.Results)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal results: %w", err)
	}
	return summary, results, nil
}

func unmarshalPayload(rec *ExecutionRecord, summary, results []byte) error {
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return fmt.Errorf("parse plan summary: %w", err)
	}
	if err := json.Unmarshal(results, &rec.Results); err != nil {
		return fmt.Errorf("parse results: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
