package planner

import (
	"context"
	"fmt"
	"log/slog"

	"chms_schema_engine/internal/catalog"
	"chms_schema_engine/internal/plan"
)

const (
	// criticalRowThreshold escalates confirmed data loss to a blocking
	// severity.
	criticalRowThreshold = 1_000_000
	// downtimeRowThreshold marks table rewrites large enough to matter
	// during service hours.
	downtimeRowThreshold = 100_000
)

// dataLossRisk classifies a drop candidate: an unknown row count is treated
// as possibly-nonzero (medium), a confirmed nonzero count is high, and very
// large tables are critical. An empty table makes the drop a structural
// no-op and carries no data-loss risk, so callers should only attach the
// returned risk when rows may exist.
func dataLossRisk(what, entity string, rows int64, known bool) plan.Risk {
	switch {
	case !known:
		return plan.Risk{
			Type:        plan.RiskDataLoss,
			Severity:    plan.SeverityMedium,
			Description: fmt.Sprintf("dropping %s; row count could not be determined, data may be lost", what),
			Entities:    []string{entity},
		}
	case rows >= criticalRowThreshold:
		return plan.Risk{
			Type:        plan.RiskDataLoss,
			Severity:    plan.SeverityCritical,
			Description: fmt.Sprintf("dropping %s destroys %d rows", what, rows),
			Entities:    []string{entity},
		}
	case rows > 0:
		return plan.Risk{
			Type:        plan.RiskDataLoss,
			Severity:    plan.SeverityHigh,
			Description: fmt.Sprintf("dropping %s destroys %d rows", what, rows),
			Entities:    []string{entity},
		}
	default:
		return plan.Risk{
			Type:        plan.RiskDataLoss,
			Severity:    plan.SeverityLow,
			Description: fmt.Sprintf("dropping %s (table is empty)", what),
			Entities:    []string{entity},
		}
	}
}

// rowCounter queries live row counts once per table per planning cycle.
type rowCounter struct {
	ctx    context.Context
	cat    catalog.Catalog
	log    *slog.Logger
	counts map[string]int64
	failed map[string]struct{}
}

func newRowCounter(ctx context.Context, cat catalog.Catalog, log *slog.Logger) *rowCounter {
	return &rowCounter{
		ctx:    ctx,
		cat:    cat,
		log:    log,
		counts: map[string]int64{},
		failed: map[string]struct{}{},
	}
}

// get returns the table's row count and whether it could be determined.
func (r *rowCounter) get(table string) (int64, bool) {
	if n, ok := r.counts[table]; ok {
		return n, true
	}
	if _, ok := r.failed[table]; ok {
		return 0, false
	}
	n, err := r.cat.TableRowCount(r.ctx, table)
	if err != nil {
		r.log.Warn("row count unavailable", "table", table, "error", err)
		r.failed[table] = struct{}{}
		return 0, false
	}
	r.counts[table] = n
	return n, true
}
