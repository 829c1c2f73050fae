package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"chms_schema_engine/internal/backup"
	"chms_schema_engine/internal/catalog"
	"chms_schema_engine/internal/config"
	"chms_schema_engine/internal/desired"
	"chms_schema_engine/internal/dialect"
	"chms_schema_engine/internal/executor"
	"chms_schema_engine/internal/ledger"
	"chms_schema_engine/internal/logging"
	"chms_schema_engine/internal/plan"
	"chms_schema_engine/internal/planner"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "plan":
		if err := planCmd(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "apply":
		if err := applyCmd(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "history":
		if err := historyCmd(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "inspect":
		if err := inspectCmd(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "init-schema":
		if err := initSchemaCmd(args); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`schemactl commands:
  plan         - diff the live database against a desired-schema file
  apply        - plan, confirm and execute the migration
  history      - show recent execution records
  inspect      - print the live schema or one table's CREATE statement
  init-schema  - write a starter desired-schema YAML

Configuration comes from SCHEMACTL_* environment variables
(SCHEMACTL_DB_DSN is required). Flags are command specific; run
"<cmd> -h" for details.`)
}

// engineEnv bundles everything a command needs against one database.
type engineEnv struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB
	cat catalog.Catalog
	d   dialect.Dialect
}

func (e *engineEnv) close() { e.db.Close() }

func openEnv() (*engineEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := catalog.Connect(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(cfg.Engine, db, cfg.Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	d, err := dialect.ForEngine(cfg.Engine)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &engineEnv{cfg: cfg, log: log, db: db, cat: cat, d: d}, nil
}

func planCmd(args []string) error {
	fs := flagSet("plan")
	schemaPath := fs.String("schema", "schema.yaml", "path to the desired-schema file")
	includeDrops := fs.Bool("include-drops", false, "emit drop steps for tables and columns missing from the desired schema")
	asJSON := fs.Bool("json", false, "print the plan as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	want, err := desired.Load(*schemaPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pl := planner.New(env.cat, env.d, env.log)
	p, err := pl.Plan(ctx, want, planner.Options{IncludeDrops: *includeDrops})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	printPlan(p)
	return nil
}

func applyCmd(args []string) error {
	fs := flagSet("apply")
	schemaPath := fs.String("schema", "schema.yaml", "path to the desired-schema file")
	includeDrops := fs.Bool("include-drops", false, "emit drop steps for tables and columns missing from the desired schema")
	dryRun := fs.Bool("dry-run", false, "report the statements each step would run without executing them")
	skipBackup := fs.Bool("skip-backup", false, "skip the pre-execution data export")
	maxRetries := fs.Int("max-retries", 3, "retries per step after its first failure")
	noRollback := fs.Bool("no-rollback", false, "do not roll back committed steps when a later step fails")
	forceCritical := fs.Bool("force-critical", false, "acknowledge critical risks and execute anyway")
	approve := fs.Bool("yes", false, "skip the approval prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	want, err := desired.Load(*schemaPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pl := planner.New(env.cat, env.d, env.log)
	p, err := pl.Plan(ctx, want, planner.Options{IncludeDrops: *includeDrops})
	if err != nil {
		return err
	}
	printPlan(p)
	if len(p.Operations) == 0 {
		fmt.Println("Nothing to apply; database already matches the desired schema.")
		return nil
	}

	if !*approve && !*dryRun {
		if ok, err := promptYes("Type YES to apply this plan: "); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("aborted by user")
		}
	}

	exec, err := buildExecutor(env)
	if err != nil {
		return err
	}
	res, err := exec.Execute(ctx, p, executor.Options{
		DryRun:          *dryRun,
		SkipBackup:      *skipBackup,
		MaxRetries:      *maxRetries,
		RollbackOnError: !*noRollback,
		ForceCritical:   *forceCritical,
	})
	if res != nil {
		printResult(res)
	}
	return err
}

func buildExecutor(env *engineEnv) (*executor.Executor, error) {
	store, err := ledger.New(env.cfg.Engine, env.db)
	if err != nil {
		return nil, err
	}
	bak := backup.New(env.db, env.d, env.cfg.BackupRoot)
	runner := executor.NewTxRunner(env.db)
	return executor.New(runner, env.cat, store, bak, env.log), nil
}

func historyCmd(args []string) error {
	fs := flagSet("history")
	limit := fs.Int("limit", 10, "number of records to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exec, err := buildExecutor(env)
	if err != nil {
		return err
	}
	records, err := exec.History(ctx, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no executions recorded yet")
		return nil
	}
	for _, r := range records {
		extras := ""
		if r.DryRun {
			extras += " dry-run"
		}
		if r.BackupPath != "" {
			extras += " backup=" + r.BackupPath
		}
		if r.Error != "" {
			extras += " err=" + r.Error
		}
		fmt.Printf("[%s] %s status=%s steps=%d duration=%s%s\n",
			r.CreatedAt.Format(time.RFC3339), r.ID, r.Status, len(r.Results), r.Duration, extras)
	}
	return nil
}

func inspectCmd(args []string) error {
	fs := flagSet("inspect")
	table := fs.String("table", "", "print this table's CREATE statement instead of the full snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *table != "" {
		stmt, err := env.cat.CreateTableStatement(ctx, *table)
		if err != nil {
			return err
		}
		fmt.Println(stmt)
		return nil
	}

	snap, err := env.cat.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database: %s (%d tables)\n", snap.Database, len(snap.Tables))
	for _, t := range snap.Tables {
		marker := ""
		if t.System {
			marker = " [system]"
		}
		fmt.Printf("  %s rows~%d%s\n", t.Name, t.RowCount, marker)
		for _, c := range snap.TableColumns(t.Name) {
			null := "NOT NULL"
			if c.Nullable {
				null = "NULL"
			}
			fmt.Printf("    %-24s %s %s\n", c.Name, c.DataType, null)
		}
		for _, ix := range snap.TableIndexes(t.Name) {
			kind := "index"
			if ix.Unique {
				kind = "unique index"
			}
			fmt.Printf("    %s %s (%s)\n", kind, ix.Name, strings.Join(ix.Columns, ", "))
		}
		for _, fk := range snap.TableForeignKeys(t.Name) {
			fmt.Printf("    fk %s: %s -> %s.%s\n", fk.Name, fk.Column, fk.RefTable, fk.RefColumn)
		}
	}
	return nil
}

func initSchemaCmd(args []string) error {
	fs := flagSet("init-schema")
	path := fs.String("path", "schema.yaml", "where to write the starter desired-schema file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}
	if err := os.WriteFile(*path, []byte(starterSchema), 0o644); err != nil {
		return err
	}
	fmt.Println("starter desired schema written to", *path)
	return nil
}

func printPlan(p plan.Plan) {
	if p.Summary.Empty() {
		fmt.Println("No differences detected.")
		return
	}
	fmt.Printf("Plan (%s), estimated duration %s\n", p.Dialect, p.EstimatedDuration)
	printSummary(p.Summary)
	fmt.Printf("Steps (%d):\n", len(p.Operations))
	for i, op := range p.Operations {
		fmt.Printf("  %2d. [%s] %s\n", i+1, op.Kind, op.Description)
		for _, stmt := range op.Statements {
			fmt.Printf("      %s\n", stmt)
		}
	}
	if len(p.Risks) > 0 {
		fmt.Printf("Risks (%d):\n", len(p.Risks))
		for _, r := range p.Risks {
			fmt.Printf("  [%s/%s] %s\n", r.Severity, r.Type, r.Description)
		}
	}
	complete := "complete"
	if !p.Rollback.Complete {
		complete = "incomplete"
	}
	fmt.Printf("Rollback: %d steps (%s)\n", len(p.Rollback.Operations), complete)
}

func printSummary(s plan.Summary) {
	section := func(label string, items []string) {
		if len(items) > 0 {
			fmt.Printf("  %s: %s\n", label, strings.Join(items, ", "))
		}
	}
	cols := func(refs []plan.ColumnRef) []string {
		out := make([]string, 0, len(refs))
		for _, r := range refs {
			out = append(out, r.Table+"."+r.Column)
		}
		return out
	}
	idxs := func(refs []plan.IndexRef) []string {
		out := make([]string, 0, len(refs))
		for _, r := range refs {
			out = append(out, r.Table+"."+r.Index)
		}
		return out
	}
	section("tables to create", s.TablesToCreate)
	section("tables to drop", s.TablesToDrop)
	section("tables to modify", s.TablesToModify)
	section("columns to add", cols(s.ColumnsToAdd))
	section("columns to drop", cols(s.ColumnsToDrop))
	section("columns to modify", cols(s.ColumnsToModify))
	section("indexes to create", idxs(s.IndexesToCreate))
	section("indexes to drop", idxs(s.IndexesToDrop))
	section("foreign keys to add", s.ForeignKeysToAdd)
	section("foreign keys to drop", s.ForeignKeysToDrop)
}

func printResult(res *executor.Result) {
	fmt.Printf("Execution %s finished with status %s in %s\n", res.ExecutionID, res.Status, res.Duration)
	if res.BackupPath != "" {
		fmt.Println("Backup written to", res.BackupPath)
	}
	for _, step := range res.Steps {
		extra := ""
		if step.Attempts > 1 {
			extra = fmt.Sprintf(" attempts=%d", step.Attempts)
		}
		if step.Error != "" {
			extra += " err=" + step.Error
		}
		fmt.Printf("  %2d. [%s] %s -> %s%s\n", step.Index+1, step.Kind, step.Description, step.Status, extra)
	}
	if !res.Validation.Valid {
		fmt.Println("Validation violations:")
		for _, v := range res.Validation.Violations {
			fmt.Println("  -", v)
		}
	}
}

func promptYes(prompt string) (bool, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	return fs
}

const starterSchema = `database: church
tables:
  - name: families
    columns:
      - name: id
        type: bigint
        nullable: false
        key: PRI
        extra: auto_increment
      - name: family_name
        type: varchar
        length: 120
        nullable: false
      - name: created_at
        type: datetime
        nullable: false
        default: CURRENT_TIMESTAMP
  - name: individuals
    columns:
      - name: id
        type: bigint
        nullable: false
        key: PRI
        extra: auto_increment
      - name: family_id
        type: bigint
      - name: first_name
        type: varchar
        length: 80
        nullable: false
      - name: last_name
        type: varchar
        length: 80
        nullable: false
      - name: email
        type: varchar
        length: 255
      - name: is_visitor
        type: tinyint
        nullable: false
        default: "0"
    indexes:
      - name: idx_individuals_family
        columns: [family_id]
      - name: idx_individuals_email
        columns: [email]
        unique: true
    foreign_keys:
      - name: fk_individuals_family
        column: family_id
        ref_table: families
        ref_column: id
  - name: events
    columns:
      - name: id
        type: bigint
        nullable: false
        key: PRI
        extra: auto_increment
      - name: name
        type: varchar
        length: 160
        nullable: false
      - name: starts_at
        type: datetime
        nullable: false
  - name: attendance_records
    columns:
      - name: id
        type: bigint
        nullable: false
        key: PRI
        extra: auto_increment
      - name: individual_id
        type: bigint
        nullable: false
      - name: event_id
        type: bigint
        nullable: false
      - name: attended_at
        type: datetime
        nullable: false
    indexes:
      - name: idx_attendance_individual
        columns: [individual_id]
      - name: idx_attendance_event
        columns: [event_id]
    foreign_keys:
      - name: fk_attendance_individual
        column: individual_id
        ref_table: individuals
        ref_column: id
      - name: fk_attendance_event
        column: event_id
        ref_table: events
        ref_column: id
`
