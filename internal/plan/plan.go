package plan

import "time"

// ColumnRef identifies one column of one table in a summary bucket.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// IndexRef identifies one index of one table in a summary bucket.
type IndexRef struct {
	Table string `json:"table"`
	Index string `json:"index"`
}

// Summary buckets every detected change by category. Drop candidates are
// always reported here even when the plan omits their steps, so a reviewer
// sees the full difference before opting in.
type Summary struct {
	TablesToCreate    []string    `json:"tables_to_create,omitempty"`
	TablesToDrop      []string    `json:"tables_to_drop,omitempty"`
	TablesToModify    []string    `json:"tables_to_modify,omitempty"`
	ColumnsToAdd      []ColumnRef `json:"columns_to_add,omitempty"`
	ColumnsToDrop     []ColumnRef `json:"columns_to_drop,omitempty"`
	ColumnsToModify   []ColumnRef `json:"columns_to_modify,omitempty"`
	IndexesToCreate   []IndexRef  `json:"indexes_to_create,omitempty"`
	IndexesToDrop     []IndexRef  `json:"indexes_to_drop,omitempty"`
	ForeignKeysToAdd  []string    `json:"foreign_keys_to_add,omitempty"`
	ForeignKeysToDrop []string    `json:"foreign_keys_to_drop,omitempty"`
}

// Empty reports whether no change was detected in any bucket.
func (s Summary) Empty() bool {
	return len(s.TablesToCreate) == 0 &&
		len(s.TablesToDrop) == 0 &&
		len(s.TablesToModify) == 0 &&
		len(s.ColumnsToAdd) == 0 &&
		len(s.ColumnsToDrop) == 0 &&
		len(s.ColumnsToModify) == 0 &&
		len(s.IndexesToCreate) == 0 &&
		len(s.IndexesToDrop) == 0 &&
		len(s.ForeignKeysToAdd) == 0 &&
		len(s.ForeignKeysToDrop) == 0
}

// RollbackPlan mirrors a forward plan, last applied step first. Complete is
// false when the forward plan contains destructive steps that cannot be
// regenerated from structure alone.
type RollbackPlan struct {
	Operations []Operation `json:"operations"`
	Risks      []Risk      `json:"risks,omitempty"`
	Complete   bool        `json:"complete"`
}

// Plan is the computed difference between a current and a desired snapshot.
// It is a value object: re-planning against a drifted catalog produces a
// new plan rather than mutating this one.
type Plan struct {
	Dialect    string       `json:"dialect"`
	Summary    Summary      `json:"summary"`
	Operations []Operation  `json:"operations"`
	Risks      []Risk       `json:"risks,omitempty"`
	Rollback   RollbackPlan `json:"rollback"`
	// EstimatedDuration is a fixed per-operation-type heuristic, not a
	// measurement.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	PlannedAt         time.Time     `json:"planned_at"`
}

// HasCritical reports whether any risk carries critical severity.
func (p Plan) HasCritical() bool {
	for _, r := range p.Risks {
		if r.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// MaxSeverity returns the highest severity present on the plan, and false
// when the plan carries no risks at all.
func (p Plan) MaxSeverity() (Severity, bool) {
	if len(p.Risks) == 0 {
		return SeverityLow, false
	}
	max := SeverityLow
	for _, r := range p.Risks {
		if r.Severity > max {
			max = r.Severity
		}
	}
	return max, true
}
