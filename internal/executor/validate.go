package executor

import (
	"context"
	"fmt"

	"chms_schema_engine/internal/plan"
)

// ValidationResult aggregates every violation found, so a human can fix
// the whole plan at once instead of replaying it error by error.
type ValidationResult struct {
	Valid      bool
	Violations []string
}

// Validate re-checks the plan against the live catalog: every table a
// column/index/key operation touches must still exist, nothing the plan
// creates may already exist, and no unacknowledged critical risk may
// remain.
func (e *Executor) Validate(ctx context.Context, p plan.Plan) (ValidationResult, error) {
	return e.validate(ctx, p, false)
}

func (e *Executor) validate(ctx context.Context, p plan.Plan, forceCritical bool) (ValidationResult, error) {
	var violations []string

	// Tables created earlier in the same plan satisfy later references.
	createdTables := map[string]struct{}{}

	tableOK := func(table string) (bool, error) {
		if _, ok := createdTables[table]; ok {
			return true, nil
		}
		return e.cat.TableExists(ctx, table)
	}

	for i, op := range p.Operations {
		if !op.Kind.Valid() {
			violations = append(violations, fmt.Sprintf("step %d has unknown operation kind", i))
			continue
		}
		if len(op.Entities) == 0 {
			violations = append(violations, fmt.Sprintf("step %d names no entities", i))
			continue
		}
		switch op.Kind {
		case plan.OpCreateTables:
			table := op.Entities[0]
			exists, err := e.cat.TableExists(ctx, table)
			if err != nil {
				return ValidationResult{}, err
			}
			if exists {
				violations = append(violations, fmt.Sprintf("step %d: table %s already exists", i, table))
			}
			createdTables[table] = struct{}{}

		case plan.OpAddColumns:
			table, column := splitEntity(op.Entities[0])
			ok, err := tableOK(table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !ok {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
				continue
			}
			if _, created := createdTables[table]; created {
				continue
			}
			exists, err := e.cat.ColumnExists(ctx, table, column)
			if err != nil {
				return ValidationResult{}, err
			}
			if exists {
				violations = append(violations, fmt.Sprintf("step %d: column %s.%s already exists", i, table, column))
			}

		case plan.OpModifyColumns, plan.OpDropColumns:
			table, column := splitEntity(op.Entities[0])
			ok, err := tableOK(table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !ok {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
				continue
			}
			exists, err := e.cat.ColumnExists(ctx, table, column)
			if err != nil {
				return ValidationResult{}, err
			}
			if !exists {
				violations = append(violations, fmt.Sprintf("step %d: column %s.%s no longer exists", i, table, column))
			}

		case plan.OpCreateIndexes:
			table, index := splitEntity(op.Entities[0])
			ok, err := tableOK(table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !ok {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
				continue
			}
			if _, created := createdTables[table]; created {
				continue
			}
			exists, err := e.cat.IndexExists(ctx, table, index)
			if err != nil {
				return ValidationResult{}, err
			}
			if exists {
				violations = append(violations, fmt.Sprintf("step %d: index %s on %s already exists", i, index, table))
			}

		case plan.OpDropIndexes:
			table, index := splitEntity(op.Entities[0])
			ok, err := tableOK(table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !ok {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
				continue
			}
			exists, err := e.cat.IndexExists(ctx, table, index)
			if err != nil {
				return ValidationResult{}, err
			}
			if !exists {
				violations = append(violations, fmt.Sprintf("step %d: index %s on %s no longer exists", i, index, table))
			}

		case plan.OpAddForeignKeys, plan.OpDropForeignKeys:
			table, _ := splitEntity(op.Entities[0])
			ok, err := tableOK(table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !ok {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
			}

		case plan.OpDropTables:
			table := op.Entities[0]
			exists, err := e.cat.TableExists(ctx, table)
			if err != nil {
				return ValidationResult{}, err
			}
			if !exists {
				violations = append(violations, fmt.Sprintf("step %d: table %s no longer exists", i, table))
			}
		}
	}

	if p.HasCritical() && !forceCritical {
		violations = append(violations, "plan carries critical risks; acknowledge them explicitly to proceed")
	}

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}, nil
}

// splitEntity parses the "table.column" / "table.index" entity form used
// by plan operations.
func splitEntity(entity string) (string, string) {
	for i := 0; i < len(entity); i++ {
		if entity[i] == '.' {
			return entity[:i], entity[i+1:]
		}
	}
	return entity, ""
}
