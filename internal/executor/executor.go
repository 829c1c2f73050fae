// Package executor validates a migration plan against a fresh catalog read
// and applies it one step at a time, each step in its own transaction, with
// bounded retries and best-effort rollback of committed steps on failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chms_schema_engine/internal/catalog"
	"chms_schema_engine/internal/ledger"
	"chms_schema_engine/internal/plan"
	"chms_schema_engine/internal/schema"
)

// Execution statuses. pending/validating/executing are transient; the rest
// are terminal.
const (
	StatusPending        = "pending"
	StatusValid          = "valid"
	StatusInvalid        = "invalid"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusRolledBack     = "rolled_back"
	StatusRollbackFailed = "rollback_failed"
)

// Step statuses recorded per operation.
const (
	StepPending        = "pending"
	StepCompleted      = "completed"
	StepFailed         = "failed"
	StepSkipped        = "skipped"
	StepRolledBack     = "rolled_back"
	StepRollbackFailed = "rollback_failed"
	StepDryRun         = "dry_run"
)

const retryBaseDelay = 500 * time.Millisecond

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Backuper captures a best-effort data export before execution.
type Backuper interface {
	Capture(ctx context.Context, snap schema.Snapshot, executionID string) (string, error)
}

// Options control one execution attempt.
type Options struct {
	// DryRun executes no SQL; each step is reported with the statements
	// it would have run.
	DryRun bool
	// ValidateOnly runs validation and returns without touching data or
	// the ledger.
	ValidateOnly bool
	// SkipBackup disables the advisory pre-execution data export.
	SkipBackup bool
	// MaxRetries bounds re-attempts per step after its first failure.
	// Zero means the default of 3.
	MaxRetries int
	// RollbackOnError replays rollback steps for committed work when a
	// later step exhausts its retries.
	RollbackOnError bool
	// ForceCritical acknowledges critical risks that would otherwise
	// block execution.
	ForceCritical bool
}

// DefaultOptions are the documented defaults: live run, backup on, three
// retries, rollback on error, critical risks blocking.
func DefaultOptions() Options {
	return Options{MaxRetries: 3, RollbackOnError: true}
}

// Result is the outcome of one Execute call.
type Result struct {
	ExecutionID uuid.UUID
	Status      string
	Validation  ValidationResult
	Steps       []ledger.StepResult
	Duration    time.Duration
	BackupPath  string
}

type Executor struct {
	runner SQLRunner
	cat    catalog.Catalog
	store  ledger.Store
	bak    Backuper
	log    Logger
}

// New builds an executor. bak may be nil when no backup facility is
// configured; executions then behave as if SkipBackup were set.
func New(runner SQLRunner, cat catalog.Catalog, store ledger.Store, bak Backuper, log Logger) *Executor {
	return &Executor{runner: runner, cat: cat, store: store, bak: bak, log: log}
}

// Execute validates the plan against a fresh catalog read and applies it.
// Exactly one execution record is persisted per call, except when
// ValidateOnly short-circuits before any side effect.
func (e *Executor) Execute(ctx context.Context, p plan.Plan, opts Options) (*Result, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}

	res := &Result{ExecutionID: uuid.New(), Status: StatusPending}
	started := time.Now()

	vr, err := e.validate(ctx, p, opts.ForceCritical)
	if err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}
	res.Validation = vr

	if opts.ValidateOnly {
		if vr.Valid {
			res.Status = StatusValid
		} else {
			res.Status = StatusInvalid
		}
		return res, nil
	}

	if !vr.Valid {
		res.Status = StatusInvalid
		res.Duration = time.Since(started)
		verr := &ValidationError{Violations: vr.Violations}
		e.persist(ctx, res, p, opts, verr.Error())
		return res, verr
	}

	res.Steps = make([]ledger.StepResult, len(p.Operations))
	for i, op := range p.Operations {
		res.Steps[i] = ledger.StepResult{
			Index:       i,
			Kind:        op.Kind,
			Description: op.Description,
			Status:      StepPending,
		}
	}

	if opts.DryRun {
		for i, op := range p.Operations {
			res.Steps[i].Status = StepDryRun
			res.Steps[i].Statements = op.Statements
		}
		res.Status = StatusCompleted
		res.Duration = time.Since(started)
		e.persist(ctx, res, p, opts, "")
		e.log.Info("dry run complete", "execution_id", res.ExecutionID, "steps", len(res.Steps))
		return res, nil
	}

	if !opts.SkipBackup && e.bak != nil {
		snap, err := e.cat.Snapshot(ctx)
		if err != nil {
			e.log.Warn("backup skipped: catalog read failed", "error", err)
		} else if path, err := e.bak.Capture(ctx, snap, res.ExecutionID.String()); err != nil {
			// Backup is advisory; the rollback plan is the real safety net.
			e.log.Warn("backup failed", "execution_id", res.ExecutionID, "error", err)
		} else {
			res.BackupPath = path
		}
	}

	execErr := e.runSteps(ctx, p, opts, res)
	res.Duration = time.Since(started)

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}
	e.persist(ctx, res, p, opts, errMsg)
	return res, execErr
}

// runSteps applies the plan strictly in order, one transaction per step.
func (e *Executor) runSteps(ctx context.Context, p plan.Plan, opts Options, res *Result) error {
	for i, op := range p.Operations {
		if err := ctx.Err(); err != nil {
			// No cancellation mid-step; between steps we stop promptly.
			for j := i; j < len(res.Steps); j++ {
				res.Steps[j].Status = StepSkipped
				res.Steps[j].Error = "not attempted: " + err.Error()
			}
			return e.failStep(ctx, p, opts, res, i, 0, err)
		}

		stepStart := time.Now()
		attempts, err := e.runStepWithRetry(ctx, op, opts.MaxRetries)
		res.Steps[i].Attempts = attempts
		res.Steps[i].Duration = time.Since(stepStart)

		if err != nil {
			res.Steps[i].Status = StepFailed
			res.Steps[i].Error = err.Error()
			for j := i + 1; j < len(res.Steps); j++ {
				res.Steps[j].Status = StepSkipped
			}
			e.log.Error("step failed", "step", i, "kind", op.Kind.String(), "attempts", attempts, "error", err)
			return e.failStep(ctx, p, opts, res, i, attempts, err)
		}

		res.Steps[i].Status = StepCompleted
		e.log.Info("step completed", "step", i, "kind", op.Kind.String(), "attempts", attempts)
	}

	res.Status = StatusCompleted
	return nil
}

// runStepWithRetry returns the number of attempts made. Backoff grows
// linearly per attempt and waits on a cancellable timer, so an abort raised
// between steps is observed promptly.
func (e *Executor) runStepWithRetry(ctx context.Context, op plan.Operation, maxRetries int) (int, error) {
	var lastErr error
	attempts := 0
	for try := 0; try <= maxRetries; try++ {
		attempts++
		lastErr = e.runner.RunStatements(ctx, op.Statements)
		if lastErr == nil {
			return attempts, nil
		}
		if try == maxRetries {
			break
		}
		delay := time.Duration(try+1) * retryBaseDelay
		e.log.Warn("step attempt failed, retrying", "kind", op.Kind.String(), "attempt", attempts, "delay_ms", delay.Milliseconds(), "error", lastErr)
		select {
		case <-ctx.Done():
			return attempts, lastErr
		case <-time.After(delay):
		}
	}
	return attempts, lastErr
}

// failStep runs the rollback path for a failed execution and shapes the
// surfaced error.
func (e *Executor) failStep(ctx context.Context, p plan.Plan, opts Options, res *Result, failed, attempts int, cause error) error {
	var committed []int
	for j := 0; j < failed; j++ {
		if res.Steps[j].Status == StepCompleted {
			committed = append(committed, j)
		}
	}

	outcome := "disabled"
	res.Status = StatusFailed
	if opts.RollbackOnError && len(committed) > 0 {
		if e.rollbackCommitted(ctx, p, res, failed) {
			res.Status = StatusRolledBack
			outcome = StatusRolledBack
		} else {
			res.Status = StatusRollbackFailed
			outcome = StatusRollbackFailed
		}
	} else if opts.RollbackOnError {
		outcome = "nothing to roll back"
	}

	return &StepExecutionError{
		Step:            failed,
		Kind:            p.Operations[failed].Kind,
		Description:     p.Operations[failed].Description,
		Attempts:        attempts,
		Err:             cause,
		Committed:       committed,
		RollbackOutcome: outcome,
	}
}

// rollbackCommitted replays the plan's precomputed rollback steps for every
// already-committed forward step, in reverse order. Rollback is best
// effort: a failing rollback step is recorded and the remaining ones still
// run, since a partial rollback is still informative.
func (e *Executor) rollbackCommitted(ctx context.Context, p plan.Plan, res *Result, failed int) bool {
	// The original cancellation must not stop the cleanup.
	rbCtx := context.WithoutCancel(ctx)
	allOK := true
	for _, op := range p.Rollback.Operations {
		if op.Reverts < 0 || op.Reverts >= failed {
			continue
		}
		if res.Steps[op.Reverts].Status != StepCompleted {
			continue
		}
		if err := e.runner.RunStatements(rbCtx, op.Statements); err != nil {
			allOK = false
			res.Steps[op.Reverts].Status = StepRollbackFailed
			res.Steps[op.Reverts].Error = fmt.Sprintf("rollback failed: %v", err)
			e.log.Error("rollback step failed", "reverts", op.Reverts, "kind", op.Kind.String(), "error", err)
			continue
		}
		res.Steps[op.Reverts].Status = StepRolledBack
		e.log.Info("rolled back step", "reverts", op.Reverts, "kind", op.Kind.String())
	}
	return allOK
}

// persist writes the execution record. A ledger failure is logged but never
// masks the execution outcome.
func (e *Executor) persist(ctx context.Context, res *Result, p plan.Plan, opts Options, errMsg string) {
	rec := ledger.ExecutionRecord{
		ID:         res.ExecutionID,
		Status:     res.Status,
		Summary:    p.Summary,
		Results:    res.Steps,
		Duration:   res.Duration,
		BackupPath: res.BackupPath,
		DryRun:     opts.DryRun,
		Error:      errMsg,
		CreatedAt:  time.Now().UTC(),
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.store.Ensure(ctx); err != nil {
		e.log.Error("ensure execution ledger", "error", err)
		return
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		e.log.Error("persist execution record", "execution_id", res.ExecutionID, "error", err)
	}
}

// History returns recent execution records, newest first.
func (e *Executor) History(ctx context.Context, limit int) ([]ledger.ExecutionRecord, error) {
	if err := e.store.Ensure(ctx); err != nil {
		return nil, err
	}
	return e.store.List(ctx, limit)
}

// Execution fetches one execution record by ID.
func (e *Executor) Execution(ctx context.Context, id uuid.UUID) (*ledger.ExecutionRecord, error) {
	if err := e.store.Ensure(ctx); err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrExecutionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	return rec, nil
}
