// Package planner computes migration plans: the ordered, risk-annotated set
// of steps moving a live schema to a desired one, together with a
// mirror-image rollback plan.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"chms_schema_engine/internal/catalog"
	"chms_schema_engine/internal/dialect"
	"chms_schema_engine/internal/plan"
	"chms_schema_engine/internal/schema"
)

// Options control plan construction.
type Options struct {
	// IncludeDrops gates destructive steps. Drop candidates always show
	// up in the summary and risk list; their steps are emitted only when
	// this is set.
	IncludeDrops bool
}

type Planner struct {
	cat catalog.Catalog
	d   dialect.Dialect
	log *slog.Logger
}

func New(cat catalog.Catalog, d dialect.Dialect, log *slog.Logger) *Planner {
	return &Planner{cat: cat, d: d, log: log}
}

// Plan reads the current schema and diffs it against the desired snapshot.
func (p *Planner) Plan(ctx context.Context, desired schema.Snapshot, opts Options) (plan.Plan, error) {
	current, err := p.cat.Snapshot(ctx)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("read current schema: %w", err)
	}
	return p.build(ctx, current, desired, opts)
}

// stepList pairs forward operations with their inverses so the rollback
// plan can be assembled once final step order is known.
type stepList struct {
	ops  []plan.Operation
	undo []*plan.Operation
}

func (s *stepList) add(op plan.Operation, undo *plan.Operation) {
	op.Reverts = -1
	s.ops = append(s.ops, op)
	s.undo = append(s.undo, undo)
}

func (p *Planner) build(ctx context.Context, current, desired schema.Snapshot, opts Options) (plan.Plan, error) {
	currentTables := tableMap(current)
	desiredTables := tableMap(desired)

	tablesToCreate := difference(sortedKeys(desiredTables), sortedKeys(currentTables))
	tablesToDrop := difference(sortedKeys(currentTables), sortedKeys(desiredTables))
	sharedTables := intersection(sortedKeys(desiredTables), currentTables)
	newTables := toSet(tablesToCreate)

	out := plan.Plan{Dialect: p.d.Name(), PlannedAt: time.Now().UTC()}
	counts := newRowCounter(ctx, p.cat, p.log)

	var creates, adds, modifies, idxCreates, fkAdds stepList
	var dropFKs, dropIdxs, dropCols, dropTables stepList

	// Tables present only in the desired snapshot.
	for _, name := range tablesToCreate {
		t := desiredTables[name]
		stmt := p.d.CreateTable(t, desired.TableColumns(name), desired.PrimaryKey(name))
		drop := p.d.DropTable(name)
		creates.add(plan.Operation{
			Kind:        plan.OpCreateTables,
			Description: fmt.Sprintf("create table %s", name),
			Statements:  []string{stmt},
			Entities:    []string{name},
		}, &plan.Operation{
			Kind:        plan.OpDropTables,
			Description: fmt.Sprintf("drop table %s (reverts create)", name),
			Statements:  []string{drop},
			Entities:    []string{name},
		})
		out.Summary.TablesToCreate = append(out.Summary.TablesToCreate, name)
	}

	// Column-level differences on tables present in both snapshots.
	for _, tbl := range sharedTables {
		p.diffTableAttributes(&out, currentTables[tbl], desiredTables[tbl])
		p.diffColumns(&out, current, desired, tbl, counts, &adds, &modifies, &dropCols)
	}

	p.diffIndexes(&out, current, desired, sharedTables, newTables, counts, &idxCreates, &dropIdxs)
	p.diffForeignKeys(&out, current, desired, newTables, &fkAdds, &dropFKs)

	// Tables present only in the current snapshot (system tables are
	// never drop candidates).
	for _, name := range tablesToDrop {
		out.Summary.TablesToDrop = append(out.Summary.TablesToDrop, name)
		n, known := counts.get(name)
		out.Risks = append(out.Risks, dataLossRisk(fmt.Sprintf("table %s", name), name, n, known))
		dropTables.add(plan.Operation{
			Kind:        plan.OpDropTables,
			Description: fmt.Sprintf("drop table %s", name),
			Statements:  []string{p.d.DropTable(name)},
			Entities:    []string{name},
		}, nil)
	}

	phases := []stepList{creates, adds, modifies, idxCreates, fkAdds}
	if opts.IncludeDrops {
		phases = append(phases, dropFKs, dropIdxs, dropCols, dropTables)
	}

	var undo []*plan.Operation
	for _, phase := range phases {
		out.Operations = append(out.Operations, phase.ops...)
		undo = append(undo, phase.undo...)
	}

	out.Rollback = buildRollback(out.Operations, undo)
	out.EstimatedDuration = estimateDuration(out.Operations)

	p.log.Info("plan computed",
		"dialect", out.Dialect,
		"steps", len(out.Operations),
		"risks", len(out.Risks),
		"estimated_ms", out.EstimatedDuration.Milliseconds(),
	)
	return out, nil
}

// diffTableAttributes compares engine and collation for a table present in
// both snapshots. The operation set has no table-modify kind, so drift is
// surfaced through the summary and a risk instead of a step.
func (p *Planner) diffTableAttributes(out *plan.Plan, cur, des schema.TableInfo) {
	engineDrift := des.Engine != "" && cur.Engine != "" && !strings.EqualFold(des.Engine, cur.Engine)
	collationDrift := des.Collation != "" && cur.Collation != "" && !strings.EqualFold(des.Collation, cur.Collation)
	if !engineDrift && !collationDrift {
		return
	}
	out.Summary.TablesToModify = append(out.Summary.TablesToModify, cur.Name)
	out.Risks = append(out.Risks, plan.Risk{
		Type:        plan.RiskPerformance,
		Severity:    plan.SeverityLow,
		Description: fmt.Sprintf("table %s engine/collation differs from desired definition; convert manually", cur.Name),
		Entities:    []string{cur.Name},
	})
}

func (p *Planner) diffColumns(out *plan.Plan, current, desired schema.Snapshot, tbl string, counts *rowCounter, adds, modifies, dropCols *stepList) {
	curCols := columnMap(current, tbl)
	desCols := columnMap(desired, tbl)

	for _, name := range difference(sortedKeys(desCols), sortedKeys(curCols)) {
		col := desCols[name]
		out.Summary.ColumnsToAdd = append(out.Summary.ColumnsToAdd, plan.ColumnRef{Table: tbl, Column: name})
		if !col.Nullable && col.Default == nil {
			if n, known := counts.get(tbl); known && n > 0 {
				out.Risks = append(out.Risks, plan.Risk{
					Type:        plan.RiskConstraintViolation,
					Severity:    plan.SeverityMedium,
					Description: fmt.Sprintf("column %s.%s is NOT NULL without a default on a table with %d rows", tbl, name, n),
					Entities:    []string{tbl + "." + name},
				})
			}
		}
		adds.add(plan.Operation{
			Kind:        plan.OpAddColumns,
			Description: fmt.Sprintf("add column %s to %s", name, tbl),
			Statements:  []string{p.d.AddColumn(col)},
			Entities:    []string{tbl + "." + name},
		}, &plan.Operation{
			Kind:        plan.OpDropColumns,
			Description: fmt.Sprintf("drop column %s from %s (reverts add)", name, tbl),
			Statements:  []string{p.d.DropColumn(tbl, name)},
			Entities:    []string{tbl + "." + name},
		})
	}

	for _, name := range difference(sortedKeys(curCols), sortedKeys(desCols)) {
		out.Summary.ColumnsToDrop = append(out.Summary.ColumnsToDrop, plan.ColumnRef{Table: tbl, Column: name})
		n, known := counts.get(tbl)
		out.Risks = append(out.Risks, dataLossRisk(fmt.Sprintf("column %s.%s", tbl, name), tbl+"."+name, n, known))
		dropCols.add(plan.Operation{
			Kind:        plan.OpDropColumns,
			Description: fmt.Sprintf("drop column %s from %s", name, tbl),
			Statements:  []string{p.d.DropColumn(tbl, name)},
			Entities:    []string{tbl + "." + name},
		}, nil)
	}

	for _, name := range intersection(sortedKeys(desCols), curCols) {
		cur, des := curCols[name], desCols[name]
		if schema.ColumnsEquivalent(cur, des) {
			continue
		}
		out.Summary.ColumnsToModify = append(out.Summary.ColumnsToModify, plan.ColumnRef{Table: tbl, Column: name})
		if n, known := counts.get(tbl); known && n > 0 {
			out.Risks = append(out.Risks, plan.Risk{
				Type:        plan.RiskDataLoss,
				Severity:    plan.SeverityMedium,
				Description: fmt.Sprintf("modifying column %s.%s may truncate or coerce %d existing rows", tbl, name, n),
				Entities:    []string{tbl + "." + name},
			})
			if n >= downtimeRowThreshold {
				out.Risks = append(out.Risks, plan.Risk{
					Type:        plan.RiskDowntime,
					Severity:    plan.SeverityMedium,
					Description: fmt.Sprintf("column change on %s rewrites a large table (%d rows) and may lock writes", tbl, n),
					Entities:    []string{tbl},
				})
			}
		}
		modifies.add(plan.Operation{
			Kind:        plan.OpModifyColumns,
			Description: fmt.Sprintf("modify column %s on %s", name, tbl),
			Statements:  p.d.ModifyColumn(des),
			Entities:    []string{tbl + "." + name},
		}, &plan.Operation{
			Kind:        plan.OpModifyColumns,
			Description: fmt.Sprintf("restore previous definition of %s on %s", name, tbl),
			Statements:  p.d.ModifyColumn(cur),
			Entities:    []string{tbl + "." + name},
		})
	}
}

func (p *Planner) diffIndexes(out *plan.Plan, current, desired schema.Snapshot, sharedTables []string, newTables map[string]struct{}, counts *rowCounter, idxCreates, dropIdxs *stepList) {
	currentFKNames := map[string]struct{}{}
	for _, fk := range current.ForeignKeys {
		currentFKNames[fk.Table+"."+fk.Name] = struct{}{}
	}

	for _, ix := range desired.Indexes {
		if _, isNew := newTables[ix.Table]; !isNew {
			if existing, ok := current.Index(ix.Table, ix.Name); ok {
				if existing.Unique != ix.Unique || !sameColumns(existing.Columns, ix.Columns) {
					// Redefinition needs a manual drop-and-recreate; a
					// generated pair would break the fixed phase order.
					out.Risks = append(out.Risks, plan.Risk{
						Type:        plan.RiskPerformance,
						Severity:    plan.SeverityLow,
						Description: fmt.Sprintf("index %s on %s differs from desired definition; recreate manually", ix.Name, ix.Table),
						Entities:    []string{ix.Table + "." + ix.Name},
					})
				}
				continue
			}
		}
		out.Summary.IndexesToCreate = append(out.Summary.IndexesToCreate, plan.IndexRef{Table: ix.Table, Index: ix.Name})
		if _, isNew := newTables[ix.Table]; !isNew {
			if n, known := counts.get(ix.Table); known && n > 0 {
				out.Risks = append(out.Risks, plan.Risk{
					Type:        plan.RiskPerformance,
					Severity:    plan.SeverityLow,
					Description: fmt.Sprintf("building index %s scans %d rows of %s", ix.Name, n, ix.Table),
					Entities:    []string{ix.Table + "." + ix.Name},
				})
			}
		}
		idxCreates.add(plan.Operation{
			Kind:        plan.OpCreateIndexes,
			Description: fmt.Sprintf("create index %s on %s", ix.Name, ix.Table),
			Statements:  []string{p.d.CreateIndex(ix)},
			Entities:    []string{ix.Table + "." + ix.Name},
		}, &plan.Operation{
			Kind:        plan.OpDropIndexes,
			Description: fmt.Sprintf("drop index %s on %s (reverts create)", ix.Name, ix.Table),
			Statements:  []string{p.d.DropIndex(ix.Table, ix.Name)},
			Entities:    []string{ix.Table + "." + ix.Name},
		})
	}

	shared := toSet(sharedTables)
	for _, ix := range current.Indexes {
		if _, ok := shared[ix.Table]; !ok {
			continue
		}
		if _, ok := desired.Index(ix.Table, ix.Name); ok {
			continue
		}
		// MySQL backs every foreign key with an index of the same name;
		// those disappear with the key, not on their own.
		if _, backsFK := currentFKNames[ix.Table+"."+ix.Name]; backsFK {
			continue
		}
		out.Summary.IndexesToDrop = append(out.Summary.IndexesToDrop, plan.IndexRef{Table: ix.Table, Index: ix.Name})
		out.Risks = append(out.Risks, plan.Risk{
			Type:        plan.RiskPerformance,
			Severity:    plan.SeverityMedium,
			Description: fmt.Sprintf("dropping index %s may slow queries on %s", ix.Name, ix.Table),
			Entities:    []string{ix.Table + "." + ix.Name},
		})
		dropIdxs.add(plan.Operation{
			Kind:        plan.OpDropIndexes,
			Description: fmt.Sprintf("drop index %s on %s", ix.Name, ix.Table),
			Statements:  []string{p.d.DropIndex(ix.Table, ix.Name)},
			Entities:    []string{ix.Table + "." + ix.Name},
		}, nil)
	}
}

func (p *Planner) diffForeignKeys(out *plan.Plan, current, desired schema.Snapshot, newTables map[string]struct{}, fkAdds, dropFKs *stepList) {
	currentByName := map[string]schema.ForeignKeyInfo{}
	for _, fk := range current.ForeignKeys {
		currentByName[fk.Table+"."+fk.Name] = fk
	}
	desiredByName := map[string]schema.ForeignKeyInfo{}
	for _, fk := range desired.ForeignKeys {
		desiredByName[fk.Table+"."+fk.Name] = fk
	}

	for _, key := range difference(sortedKeys(desiredByName), sortedKeys(currentByName)) {
		fk := desiredByName[key]
		out.Summary.ForeignKeysToAdd = append(out.Summary.ForeignKeysToAdd, fk.Name)
		if !desired.HasTable(fk.RefTable) && !current.HasTable(fk.RefTable) {
			// A hard failure belongs to validation, not planning.
			out.Risks = append(out.Risks, plan.Risk{
				Type:        plan.RiskConstraintViolation,
				Severity:    plan.SeverityHigh,
				Description: fmt.Sprintf("foreign key %s references table %s which exists in neither schema", fk.Name, fk.RefTable),
				Entities:    []string{fk.Table + "." + fk.Name},
			})
		}
		fkAdds.add(plan.Operation{
			Kind:        plan.OpAddForeignKeys,
			Description: fmt.Sprintf("add foreign key %s on %s", fk.Name, fk.Table),
			Statements:  []string{p.d.AddForeignKey(fk)},
			Entities:    []string{fk.Table + "." + fk.Name},
		}, &plan.Operation{
			Kind:        plan.OpDropForeignKeys,
			Description: fmt.Sprintf("drop foreign key %s on %s (reverts add)", fk.Name, fk.Table),
			Statements:  []string{p.d.DropForeignKey(fk.Table, fk.Name)},
			Entities:    []string{fk.Table + "." + fk.Name},
		})
	}

	for _, key := range difference(sortedKeys(currentByName), sortedKeys(desiredByName)) {
		fk := currentByName[key]
		if !desired.HasTable(fk.Table) {
			// The whole table is a drop candidate; its keys go with it.
			continue
		}
		out.Summary.ForeignKeysToDrop = append(out.Summary.ForeignKeysToDrop, fk.Name)
		out.Risks = append(out.Risks, plan.Risk{
			Type:        plan.RiskConstraintViolation,
			Severity:    plan.SeverityLow,
			Description: fmt.Sprintf("dropping foreign key %s removes referential protection on %s", fk.Name, fk.Table),
			Entities:    []string{fk.Table + "." + fk.Name},
		})
		dropFKs.add(plan.Operation{
			Kind:        plan.OpDropForeignKeys,
			Description: fmt.Sprintf("drop foreign key %s on %s", fk.Name, fk.Table),
			Statements:  []string{p.d.DropForeignKey(fk.Table, fk.Name)},
			Entities:    []string{fk.Table + "." + fk.Name},
		}, nil)
	}
}

func tableMap(s schema.Snapshot) map[string]schema.TableInfo {
	out := make(map[string]schema.TableInfo, len(s.Tables))
	for _, t := range s.Tables {
		if t.System || catalog.IsSystemTable(t.Name) {
			continue
		}
		out[t.Name] = t
	}
	return out
}

func columnMap(s schema.Snapshot, table string) map[string]schema.ColumnInfo {
	out := map[string]schema.ColumnInfo{}
	for _, c := range s.TableColumns(table) {
		out[c.Name] = c
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func intersection[V any](a []string, b map[string]V) []string {
	var out []string
	for _, v := range a {
		if _, ok := b[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
