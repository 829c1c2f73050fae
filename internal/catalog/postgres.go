package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"chms_schema_engine/internal/dialect"
	"chms_schema_engine/internal/schema"
)

type PostgresCatalog struct {
	db     *sql.DB
	schema string
}

func (p *PostgresCatalog) Engine() string { return "postgres" }

func (p *PostgresCatalog) schemaName() string {
	if s := strings.TrimSpace(p.schema); s != "" {
		return s
	}
	return "public"
}

func (p *PostgresCatalog) Snapshot(ctx context.Context) (schema.Snapshot, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return schema.Snapshot{}, unavailable(err)
	}
	name := p.schemaName()
	snap := schema.Snapshot{Database: name, CapturedAt: time.Now().UTC()}

	tableRows, err := p.db.QueryContext(ctx, `
SELECT c.relname, COALESCE(c.reltuples, 0)::bigint
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind = 'r'
ORDER BY c.relname`, name)
	if err != nil {
		return snap, fmt.Errorf("list tables: %w", err)
	}
	defer tableRows.Close()

	for tableRows.Next() {
		var t schema.TableInfo
		var estimate int64
		if err := tableRows.Scan(&t.Name, &estimate); err != nil {
			return snap, err
		}
		if estimate > 0 {
			t.RowCount = estimate
		}
		t.System = IsSystemTable(t.Name)
		snap.Tables = append(snap.Tables, t)
	}
	if err := tableRows.Err(); err != nil {
		return snap, err
	}

	colRows, err := p.db.QueryContext(ctx, `
SELECT table_name, column_name, ordinal_position, is_nullable, data_type,
       character_maximum_length, numeric_precision, numeric_scale, column_default
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`, name)
	if err != nil {
		return snap, fmt.Errorf("list columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var c schema.ColumnInfo
		var nullable string
		var length, precision, scale sql.NullInt64
		var def sql.NullString
		if err := colRows.Scan(&c.Table, &c.Name, &c.Position, &nullable, &c.DataType, &length, &precision, &scale, &def); err != nil {
			return snap, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		if length.Valid {
			v := length.Int64
			c.Length = &v
		}
		if precision.Valid {
			v := precision.Int64
			c.Precision = &v
		}
		if scale.Valid {
			v := scale.Int64
			c.Scale = &v
		}
		if def.Valid {
			v := def.String
			c.Default = &v
		}
		snap.Columns = append(snap.Columns, c)
	}
	if err := colRows.Err(); err != nil {
		return snap, err
	}

	// Primary-key membership feeds ColumnInfo.Key the way MySQL reports it.
	pkRows, err := p.db.QueryContext(ctx, `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`, name)
	if err != nil {
		return snap, fmt.Errorf("list primary keys: %w", err)
	}
	defer pkRows.Close()

	pkCols := map[string]struct{}{}
	for pkRows.Next() {
		var table, col string
		if err := pkRows.Scan(&table, &col); err != nil {
			return snap, err
		}
		pkCols[table+"."+col] = struct{}{}
	}
	if err := pkRows.Err(); err != nil {
		return snap, err
	}
	for i := range snap.Columns {
		if _, ok := pkCols[snap.Columns[i].Table+"."+snap.Columns[i].Name]; ok {
			snap.Columns[i].Key = "PRI"
		}
	}

	idxRows, err := p.db.QueryContext(ctx, `
SELECT t.relname, i.relname, ix.indisunique, a.attname
FROM pg_index ix
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE n.nspname = $1 AND NOT ix.indisprimary
ORDER BY t.relname, i.relname, array_position(ix.indkey, a.attnum)`, name)
	if err != nil {
		return snap, fmt.Errorf("list indexes: %w", err)
	}
	defer idxRows.Close()

	indexOrder := []string{}
	indexes := map[string]*schema.IndexInfo{}
	for idxRows.Next() {
		var table, index, column string
		var unique bool
		if err := idxRows.Scan(&table, &index, &unique, &column); err != nil {
			return snap, err
		}
		key := table + "." + index
		ix, ok := indexes[key]
		if !ok {
			ix = &schema.IndexInfo{Table: table, Name: index, Unique: unique}
			indexes[key] = ix
			indexOrder = append(indexOrder, key)
		}
		ix.Columns = append(ix.Columns, column)
	}
	if err := idxRows.Err(); err != nil {
		return snap, err
	}
	for _, key := range indexOrder {
		snap.Indexes = append(snap.Indexes, *indexes[key])
	}

	fkRows, err := p.db.QueryContext(ctx, `
SELECT rc.constraint_name, kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = rc.constraint_name
 AND kcu.constraint_schema = rc.constraint_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = rc.unique_constraint_name
 AND ccu.constraint_schema = rc.unique_constraint_schema
WHERE rc.constraint_schema = $1
ORDER BY kcu.table_name, rc.constraint_name`, name)
	if err != nil {
		return snap, fmt.Errorf("list foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var fk schema.ForeignKeyInfo
		if err := fkRows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return snap, err
		}
		snap.ForeignKeys = append(snap.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return snap, err
	}

	conRows, err := p.db.QueryContext(ctx, `
SELECT constraint_name, table_name, constraint_type
FROM information_schema.table_constraints
WHERE table_schema = $1
ORDER BY table_name, constraint_name`, name)
	if err != nil {
		return snap, fmt.Errorf("list constraints: %w", err)
	}
	defer conRows.Close()

	for conRows.Next() {
		var c schema.ConstraintInfo
		if err := conRows.Scan(&c.Name, &c.Table, &c.Kind); err != nil {
			return snap, err
		}
		snap.Constraints = append(snap.Constraints, c)
	}
	return snap, conRows.Err()
}

func (p *PostgresCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema=$1 AND table_name=$2 AND table_type='BASE TABLE'`, p.schemaName(), table).Scan(&count)
	return count > 0, err
}

func (p *PostgresCatalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.columns
WHERE table_schema=$1 AND table_name=$2 AND column_name=$3`, p.schemaName(), table, column).Scan(&count)
	return count > 0, err
}

func (p *PostgresCatalog) IndexExists(ctx context.Context, table, index string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM pg_indexes
WHERE schemaname=$1 AND tablename=$2 AND indexname=$3`, p.schemaName(), table, index).Scan(&count)
	return count > 0, err
}

func (p *PostgresCatalog) TableRowCount(ctx context.Context, table string) (int64, error) {
	quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	var count int64
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return count, nil
}

// CreateTableStatement synthesizes the definition from catalog rows;
// Postgres has no SHOW CREATE TABLE equivalent.
func (p *PostgresCatalog) CreateTableStatement(ctx context.Context, table string) (string, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	t, ok := snap.Table(table)
	if !ok {
		return "", fmt.Errorf("table %s not found", table)
	}
	d := dialect.Postgres{}
	return d.CreateTable(t, snap.TableColumns(table), snap.PrimaryKey(table)), nil
}
