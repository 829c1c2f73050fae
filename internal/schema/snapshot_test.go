package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func baseSnapshot() Snapshot {
	return Snapshot{
		Database: "church",
		Tables: []TableInfo{
			{Name: "individuals", Engine: "InnoDB", RowCount: 1200},
			{Name: "families"},
		},
		Columns: []ColumnInfo{
			{Table: "individuals", Name: "last_name", Position: 3, Nullable: true, DataType: "varchar", Length: i64(80)},
			{Table: "individuals", Name: "id", Position: 1, DataType: "bigint", Key: "PRI"},
			{Table: "individuals", Name: "first_name", Position: 2, Nullable: true, DataType: "varchar", Length: i64(80)},
			{Table: "families", Name: "id", Position: 1, DataType: "bigint", Key: "PRI"},
		},
		Indexes: []IndexInfo{
			{Table: "individuals", Name: "idx_individuals_name", Columns: []string{"last_name", "first_name"}},
		},
		ForeignKeys: []ForeignKeyInfo{
			{Name: "fk_individuals_family", Table: "individuals", Column: "id", RefTable: "families", RefColumn: "id"},
		},
	}
}

func TestTableColumnsOrderedByPosition(t *testing.T) {
	cols := baseSnapshot().TableColumns("individuals")
	require.Len(t, cols, 3)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "first_name", cols[1].Name)
	assert.Equal(t, "last_name", cols[2].Name)
}

func TestPrimaryKey(t *testing.T) {
	assert.Equal(t, []string{"id"}, baseSnapshot().PrimaryKey("individuals"))
	assert.Empty(t, baseSnapshot().PrimaryKey("missing"))
}

func TestLookups(t *testing.T) {
	s := baseSnapshot()

	assert.True(t, s.HasTable("families"))
	assert.False(t, s.HasTable("events"))

	_, ok := s.Column("individuals", "first_name")
	assert.True(t, ok)
	_, ok = s.Column("individuals", "nope")
	assert.False(t, ok)

	_, ok = s.Index("individuals", "idx_individuals_name")
	assert.True(t, ok)

	fks := s.TableForeignKeys("individuals")
	require.Len(t, fks, 1)
	assert.Equal(t, "families", fks[0].RefTable)
}

func TestEqualIgnoresRowCountsAndSystemTables(t *testing.T) {
	a := baseSnapshot()
	b := baseSnapshot()
	b.Tables[0].RowCount = 999_999
	b.Tables = append(b.Tables, TableInfo{Name: "schema_migration_executions", System: true})
	b.Columns = append(b.Columns, ColumnInfo{Table: "schema_migration_executions", Name: "id", Position: 1, DataType: "bigint"})

	assert.True(t, Equal(a, b))
}

func TestEqualDetectsStructuralDrift(t *testing.T) {
	a := baseSnapshot()

	b := baseSnapshot()
	b.Columns[0].Length = i64(120)
	assert.False(t, Equal(a, b), "changed column length")

	c := baseSnapshot()
	c.Indexes[0].Unique = true
	assert.False(t, Equal(a, c), "changed index uniqueness")

	d := baseSnapshot()
	d.Tables = d.Tables[:1]
	assert.False(t, Equal(a, d), "missing table")
}

func TestColumnsEquivalent(t *testing.T) {
	base := ColumnInfo{DataType: "varchar", Nullable: true, Length: i64(80)}

	upper := base
	upper.DataType = "VARCHAR"
	assert.True(t, ColumnsEquivalent(base, upper), "type compares case-insensitively")

	quoted := base
	quoted.Default = str("'active'")
	bare := base
	bare.Default = str("active")
	assert.True(t, ColumnsEquivalent(quoted, bare), "defaults compare unquoted")

	assert.False(t, ColumnsEquivalent(base, quoted), "nil default differs from empty-ish default")

	notNull := base
	notNull.Nullable = false
	assert.False(t, ColumnsEquivalent(base, notNull))
}
