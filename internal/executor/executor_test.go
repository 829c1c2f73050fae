package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chms_schema_engine/internal/ledger"
	"chms_schema_engine/internal/plan"
	"chms_schema_engine/internal/schema"
)

type fakeCatalog struct {
	snap schema.Snapshot
}

func (f *fakeCatalog) Engine() string                                    { return "mysql" }
func (f *fakeCatalog) Snapshot(context.Context) (schema.Snapshot, error) { return f.snap, nil }

func (f *fakeCatalog) TableExists(_ context.Context, table string) (bool, error) {
	return f.snap.HasTable(table), nil
}

func (f *fakeCatalog) ColumnExists(_ context.Context, table, column string) (bool, error) {
	_, ok := f.snap.Column(table, column)
	return ok, nil
}

func (f *fakeCatalog) IndexExists(_ context.Context, table, index string) (bool, error) {
	_, ok := f.snap.Index(table, index)
	return ok, nil
}

func (f *fakeCatalog) TableRowCount(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeCatalog) CreateTableStatement(context.Context, string) (string, error) {
	return "", nil
}

// fakeRunner records every statement batch and fails batches containing
// failToken. onRun, when set, fires before each batch.
type fakeRunner struct {
	executed  [][]string
	failToken string
	onRun     func()
}

func (f *fakeRunner) RunStatements(_ context.Context, stmts []string) error {
	if f.onRun != nil {
		f.onRun()
	}
	f.executed = append(f.executed, stmts)
	if f.failToken != "" {
		for _, s := range stmts {
			if strings.Contains(s, f.failToken) {
				return fmt.Errorf("syntax error near %q", f.failToken)
			}
		}
	}
	return nil
}

type fakeStore struct {
	inserted []ledger.ExecutionRecord
}

func (f *fakeStore) Ensure(context.Context) error { return nil }

func (f *fakeStore) Insert(_ context.Context, rec ledger.ExecutionRecord) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*ledger.ExecutionRecord, error) {
	for i := range f.inserted {
		if f.inserted[i].ID == id {
			return &f.inserted[i], nil
		}
	}
	return nil, ledger.ErrExecutionNotFound
}

func (f *fakeStore) List(_ context.Context, limit int) ([]ledger.ExecutionRecord, error) {
	if limit > len(f.inserted) {
		limit = len(f.inserted)
	}
	return f.inserted[:limit], nil
}

type fakeBackuper struct {
	path     string
	err      error
	captured []string
}

func (f *fakeBackuper) Capture(_ context.Context, _ schema.Snapshot, executionID string) (string, error) {
	f.captured = append(f.captured, executionID)
	return f.path, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTablesPlan builds a three-step plan with a complete rollback, the
// shape the planner produces for three new tables.
func createTablesPlan(names ...string) plan.Plan {
	p := plan.Plan{Dialect: "mysql", Rollback: plan.RollbackPlan{Complete: true}}
	for _, n := range names {
		p.Summary.TablesToCreate = append(p.Summary.TablesToCreate, n)
		p.Operations = append(p.Operations, plan.Operation{
			Kind:        plan.OpCreateTables,
			Description: "create table " + n,
			Statements:  []string{"CREATE TABLE `" + n + "` ()"},
			Entities:    []string{n},
			Reverts:     -1,
		})
	}
	for i := len(names) - 1; i >= 0; i-- {
		p.Rollback.Operations = append(p.Rollback.Operations, plan.Operation{
			Kind:        plan.OpDropTables,
			Description: "drop table " + names[i],
			Statements:  []string{"DROP TABLE `" + names[i] + "`"},
			Entities:    []string{names[i]},
			Reverts:     i,
		})
	}
	return p
}

func newTestExecutor(runner *fakeRunner, cat *fakeCatalog, store *fakeStore, bak Backuper) *Executor {
	return New(runner, cat, store, bak, testLogger())
}

func TestExecuteSuccess(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	bak := &fakeBackuper{path: "/backups/x"}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, bak)

	p := createTablesPlan("families", "individuals")
	res, err := exec.Execute(context.Background(), p, Options{MaxRetries: 1, RollbackOnError: true})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "/backups/x", res.BackupPath)
	require.Len(t, res.Steps, 2)
	for _, s := range res.Steps {
		assert.Equal(t, StepCompleted, s.Status)
		assert.Equal(t, 1, s.Attempts)
	}
	assert.Len(t, runner.executed, 2)
	assert.Equal(t, []string{res.ExecutionID.String()}, bak.captured)

	require.Len(t, store.inserted, 1)
	rec := store.inserted[0]
	assert.Equal(t, res.ExecutionID, rec.ID)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Empty(t, rec.Error)
	assert.Equal(t, "/backups/x", rec.BackupPath)
}

func TestExecuteFailureRollsBackCommittedSteps(t *testing.T) {
	runner := &fakeRunner{failToken: "individuals"}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	p := createTablesPlan("families", "individuals", "events")
	res, err := exec.Execute(context.Background(), p, Options{MaxRetries: 1, RollbackOnError: true})
	require.Error(t, err)

	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Step)
	assert.Equal(t, plan.OpCreateTables, stepErr.Kind)
	assert.Equal(t, 2, stepErr.Attempts)
	assert.Equal(t, []int{0}, stepErr.Committed)
	assert.Equal(t, StatusRolledBack, stepErr.RollbackOutcome)

	assert.Equal(t, StatusRolledBack, res.Status)
	assert.Equal(t, StepRolledBack, res.Steps[0].Status)
	assert.Equal(t, StepFailed, res.Steps[1].Status)
	assert.Equal(t, 2, res.Steps[1].Attempts)
	assert.Equal(t, StepSkipped, res.Steps[2].Status)

	// Batches: step 0, step 1 twice, then the rollback drop of step 0.
	require.Len(t, runner.executed, 4)
	assert.Equal(t, []string{"DROP TABLE `families`"}, runner.executed[3])

	require.Len(t, store.inserted, 1)
	assert.Equal(t, StatusRolledBack, store.inserted[0].Status)
	assert.Contains(t, store.inserted[0].Error, "syntax error")
}

func TestExecuteFailureWithRollbackDisabled(t *testing.T) {
	runner := &fakeRunner{failToken: "individuals"}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	p := createTablesPlan("families", "individuals")
	res, err := exec.Execute(context.Background(), p, Options{MaxRetries: 1})
	require.Error(t, err)

	var stepErr *StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "disabled", stepErr.RollbackOutcome)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StepCompleted, res.Steps[0].Status)
	// Three batches only: no rollback ran.
	assert.Len(t, runner.executed, 3)
}

func TestExecuteCancellationSkipsRemainingSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{}
	runner.onRun = func() {
		if len(runner.executed) == 0 {
			cancel()
		}
	}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	p := createTablesPlan("families", "individuals", "events")
	res, err := exec.Execute(ctx, p, Options{MaxRetries: 1, RollbackOnError: true, SkipBackup: true})
	require.Error(t, err)

	// Step 0 committed before the abort was observed; it is rolled back
	// and the rest never run.
	assert.Equal(t, StatusRolledBack, res.Status)
	assert.Equal(t, StepRolledBack, res.Steps[0].Status)
	assert.Equal(t, StepSkipped, res.Steps[1].Status)
	assert.Contains(t, res.Steps[1].Error, "not attempted")
	assert.Equal(t, StepSkipped, res.Steps[2].Status)

	// The record is still persisted despite the cancelled context.
	require.Len(t, store.inserted, 1)
}

func TestExecuteDryRun(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	p := createTablesPlan("families")
	res, err := exec.Execute(context.Background(), p, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, StepDryRun, res.Steps[0].Status)
	assert.Equal(t, p.Operations[0].Statements, res.Steps[0].Statements)
	assert.Empty(t, runner.executed)

	require.Len(t, store.inserted, 1)
	assert.True(t, store.inserted[0].DryRun)
}

func TestExecuteValidateOnlyPersistsNothing(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	res, err := exec.Execute(context.Background(), createTablesPlan("families"), Options{ValidateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
	assert.True(t, res.Validation.Valid)
	assert.Empty(t, runner.executed)
	assert.Empty(t, store.inserted)
}

func TestExecuteInvalidPlan(t *testing.T) {
	cat := &fakeCatalog{snap: schema.Snapshot{Tables: []schema.TableInfo{{Name: "families"}}}}
	runner := &fakeRunner{}
	store := &fakeStore{}
	exec := newTestExecutor(runner, cat, store, nil)

	res, err := exec.Execute(context.Background(), createTablesPlan("families"), Options{})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Violations[0], "already exists")

	assert.Equal(t, StatusInvalid, res.Status)
	assert.Empty(t, runner.executed)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, StatusInvalid, store.inserted[0].Status)
}

func TestExecuteCriticalRiskBlocksUnlessForced(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, nil)

	p := createTablesPlan("families")
	p.Risks = append(p.Risks, plan.Risk{
		Type:        plan.RiskDataLoss,
		Severity:    plan.SeverityCritical,
		Description: "dropping table old_reports destroys 2000000 rows",
	})

	_, err := exec.Execute(context.Background(), p, Options{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "critical")

	res, err := exec.Execute(context.Background(), p, Options{ForceCritical: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestExecuteBackupFailureIsAdvisory(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	bak := &fakeBackuper{err: errors.New("disk full")}
	exec := newTestExecutor(runner, &fakeCatalog{}, store, bak)

	res, err := exec.Execute(context.Background(), createTablesPlan("families"), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.BackupPath)
}

func TestRetryTiming(t *testing.T) {
	runner := &fakeRunner{failToken: "families"}
	exec := newTestExecutor(runner, &fakeCatalog{}, &fakeStore{}, nil)

	start := time.Now()
	_, err := exec.Execute(context.Background(), createTablesPlan("families"), Options{MaxRetries: 1})
	require.Error(t, err)
	// One retry means one 500ms backoff before the second attempt.
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, runner.executed, 2)
}

func TestValidateAllowsTablesCreatedEarlierInPlan(t *testing.T) {
	exec := newTestExecutor(&fakeRunner{}, &fakeCatalog{}, &fakeStore{}, nil)

	p := createTablesPlan("families")
	p.Operations = append(p.Operations, plan.Operation{
		Kind:        plan.OpAddForeignKeys,
		Description: "add foreign key fk_individuals_family on individuals",
		Statements:  []string{"ALTER TABLE ..."},
		Entities:    []string{"families.fk_x"},
		Reverts:     -1,
	})

	vr, err := exec.Validate(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, vr.Valid, "violations: %v", vr.Violations)
}

func TestValidateAggregatesViolations(t *testing.T) {
	cat := &fakeCatalog{snap: schema.Snapshot{Tables: []schema.TableInfo{{Name: "families"}}}}
	exec := newTestExecutor(&fakeRunner{}, cat, &fakeStore{}, nil)

	p := plan.Plan{Operations: []plan.Operation{
		{Kind: plan.OpCreateTables, Statements: []string{"x"}, Entities: []string{"families"}, Reverts: -1},
		{Kind: plan.OpDropColumns, Statements: []string{"x"}, Entities: []string{"missing.col"}, Reverts: -1},
		{Kind: plan.OpDropTables, Statements: []string{"x"}, Entities: []string{"ghosts"}, Reverts: -1},
	}}

	vr, err := exec.Validate(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, vr.Valid)
	assert.Len(t, vr.Violations, 3)
}

func TestHistoryAndExecution(t *testing.T) {
	store := &fakeStore{}
	exec := newTestExecutor(&fakeRunner{}, &fakeCatalog{}, store, nil)

	res, err := exec.Execute(context.Background(), createTablesPlan("families"), Options{})
	require.NoError(t, err)

	records, err := exec.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec, err := exec.Execution(context.Background(), res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, res.ExecutionID, rec.ID)

	_, err = exec.Execution(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrExecutionNotFound)
}
