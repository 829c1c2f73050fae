package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"chms_schema_engine/internal/schema"
)

type MySQLCatalog struct {
	db     *sql.DB
	schema string
}

func (m *MySQLCatalog) Engine() string { return "mysql" }

func (m *MySQLCatalog) schemaName(ctx context.Context) (string, error) {
	name := strings.TrimSpace(m.schema)
	if name != "" {
		return name, nil
	}
	if err := m.db.QueryRowContext(ctx, `SELECT DATABASE()`).Scan(&name); err != nil {
		return "", unavailable(err)
	}
	return name, nil
}

func (m *MySQLCatalog) Snapshot(ctx context.Context) (schema.Snapshot, error) {
	if err := m.db.PingContext(ctx); err != nil {
		return schema.Snapshot{}, unavailable(err)
	}
	name, err := m.schemaName(ctx)
	if err != nil {
		return schema.Snapshot{}, err
	}
	snap := schema.Snapshot{Database: name, CapturedAt: time.Now().UTC()}

	tableRows, err := m.db.QueryContext(ctx, `
SELECT table_name, COALESCE(engine, ''), COALESCE(table_collation, ''), COALESCE(table_rows, 0), create_time, update_time
FROM information_schema.tables
WHERE table_schema=? AND table_type='BASE TABLE'
ORDER BY table_name`, name)
	if err != nil {
		return snap, fmt.Errorf("list tables: %w", err)
	}
	defer tableRows.Close()

	for tableRows.Next() {
		var t schema.TableInfo
		var created, updated sql.NullTime
		if err := tableRows.Scan(&t.Name, &t.Engine, &t.Collation, &t.RowCount, &created, &updated); err != nil {
			return snap, err
		}
		if created.Valid {
			t.CreatedAt = &created.Time
		}
		if updated.Valid {
			t.UpdatedAt = &updated.Time
		}
		t.System = IsSystemTable(t.Name)
		snap.Tables = append(snap.Tables, t)
	}
	if err := tableRows.Err(); err != nil {
		return snap, err
	}

	colRows, err := m.db.QueryContext(ctx, `
SELECT table_name, column_name, ordinal_position, is_nullable, data_type,
       character_maximum_length, numeric_precision, numeric_scale,
       column_default, column_key, extra
FROM information_schema.columns
WHERE table_schema=?
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
		if err := colRows.Scan(&c.Table, &c.Name, &c.Position, &nullable, &c.DataType, &length, &precision, &scale, &def, &c.Key, &c.Extra); err != nil {
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

	idxRows, err := m.db.QueryContext(ctx, `
SELECT table_name, index_name, non_unique, column_name
FROM information_schema.statistics
WHERE table_schema=? AND index_name <> 'PRIMARY'
ORDER BY table_name, index_name, seq_in_index`, name)
	if err != nil {
		return snap, fmt.Errorf("list indexes: %w", err)
	}
	defer idxRows.Close()

	indexOrder := []string{}
	indexes := map[string]*schema.IndexInfo{}
	for idxRows.Next() {
		var table, index, column string
		var nonUnique int
		if err := idxRows.Scan(&table, &index, &nonUnique, &column); err != nil {
			return snap, err
		}
		key := table + "." + index
		ix, ok := indexes[key]
		if !ok {
			ix = &schema.IndexInfo{Table: table, Name: index, Unique: nonUnique == 0}
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

	fkRows, err := m.db.QueryContext(ctx, `
SELECT constraint_name, table_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema=? AND referenced_table_name IS NOT NULL
ORDER BY table_name, constraint_name`, name)
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

	conRows, err := m.db.QueryContext(ctx, `
SELECT constraint_name, table_name, constraint_type
FROM information_schema.table_constraints
WHERE table_schema=?
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

func (m *MySQLCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	name, err := m.schemaName(ctx)
	if err != nil {
		return false, err
	}
	var count int
	err = m.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema=? AND table_name=? AND table_type='BASE TABLE'`, name, table).Scan(&count)
	return count > 0, err
}

func (m *MySQLCatalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	name, err := m.schemaName(ctx)
	if err != nil {
		return false, err
	}
	var count int
	err = m.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM information_schema.columns
WHERE table_schema=? AND table_name=? AND column_name=?`, name, table, column).Scan(&count)
	return count > 0, err
}

func (m *MySQLCatalog) IndexExists(ctx context.Context, table, index string) (bool, error) {
	name, err := m.schemaName(ctx)
	if err != nil {
		return false, err
	}
	var count int
	err = m.db.QueryRowContext(ctx, `
SELECT COUNT(DISTINCT index_name) FROM information_schema.statistics
WHERE table_schema=? AND table_name=? AND index_name=?`, name, table, index).Scan(&count)
	return count > 0, err
}

func (m *MySQLCatalog) TableRowCount(ctx context.Context, table string) (int64, error) {
	quoted := "`" + strings.ReplaceAll(table, "`", "``") + "`"
	var count int64
	if err := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return count, nil
}

func (m *MySQLCatalog) CreateTableStatement(ctx context.Context, table string) (string, error) {
	quoted := "`" + strings.ReplaceAll(table, "`", "``") + "`"
	var name, stmt string
	if err := m.db.QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE TABLE %s", quoted)).Scan(&name, &stmt); err != nil {
		return "", fmt.Errorf("show create table %s: %w", table, err)
	}
	return stmt, nil
}
