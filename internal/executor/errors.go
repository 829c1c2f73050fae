package executor

import (
	"fmt"
	"strings"

	"chms_schema_engine/internal/plan"
)

// ValidationError is fatal and pre-empts execution entirely: nothing has
// been applied when it is returned. It aggregates every violation so a
// whole plan can be fixed at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: %s", strings.Join(e.Violations, "; "))
}

// StepExecutionError reports one step failing after exhausting its retries,
// which steps had committed before it, and how the rollback of those steps
// went. A rollback failure never masks the original error.
type StepExecutionError struct {
	Step            int
	Kind            plan.OpKind
	Description     string
	Attempts        int
	Err             error
	Committed       []int
	RollbackOutcome string
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed after %d attempts: %v (committed steps: %v, rollback: %s)",
		e.Step, e.Kind, e.Attempts, e.Err, e.Committed, e.RollbackOutcome)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }
