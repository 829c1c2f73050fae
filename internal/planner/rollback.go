package planner

import (
	"fmt"
	"time"

	"chms_schema_engine/internal/plan"
)

// buildRollback assembles the mirror-image plan: inverses of the forward
// steps, last applied first. Forward drops have no inverse; they make the
// rollback plan incomplete and are flagged as data-loss risks on it.
func buildRollback(forward []plan.Operation, undo []*plan.Operation) plan.RollbackPlan {
	rp := plan.RollbackPlan{Complete: true}
	for i := len(forward) - 1; i >= 0; i-- {
		inverse := undo[i]
		if inverse == nil {
			rp.Complete = false
			rp.Risks = append(rp.Risks, plan.Risk{
				Type:        plan.RiskDataLoss,
				Severity:    plan.SeverityHigh,
				Description: fmt.Sprintf("step %q is irreversible; rollback cannot restore it", forward[i].Description),
				Entities:    forward[i].Entities,
			})
			continue
		}
		op := *inverse
		op.Reverts = i
		rp.Operations = append(rp.Operations, op)
	}
	return rp
}

// stepCosts is a fixed heuristic cost per operation type. It is not a
// measurement: creates and index builds dominate, drops are cheap metadata
// operations.
var stepCosts = map[plan.OpKind]time.Duration{
	plan.OpCreateTables:    2000 * time.Millisecond,
	plan.OpAddColumns:      500 * time.Millisecond,
	plan.OpModifyColumns:   1500 * time.Millisecond,
	plan.OpDropColumns:     200 * time.Millisecond,
	plan.OpCreateIndexes:   3000 * time.Millisecond,
	plan.OpDropIndexes:     200 * time.Millisecond,
	plan.OpAddForeignKeys:  1000 * time.Millisecond,
	plan.OpDropForeignKeys: 200 * time.Millisecond,
	plan.OpDropTables:      100 * time.Millisecond,
}

func estimateDuration(ops []plan.Operation) time.Duration {
	var total time.Duration
	for _, op := range ops {
		total += stepCosts[op.Kind]
	}
	return total
}
