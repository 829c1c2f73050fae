package desired

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `database: church
tables:
  - name: individuals
    engine: InnoDB
    columns:
      - name: id
        type: bigint
        nullable: false
        key: PRI
        extra: auto_increment
      - name: email
        type: varchar
        length: 255
      - name: is_visitor
        type: tinyint
        nullable: false
        default: "0"
    indexes:
      - name: idx_individuals_email
        columns: [email]
        unique: true
    foreign_keys:
      - name: fk_individuals_family
        column: id
        ref_table: families
        ref_column: id
`

func TestParse(t *testing.T) {
	snap, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "church", snap.Database)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, "InnoDB", snap.Tables[0].Engine)

	require.Len(t, snap.Columns, 3)
	id := snap.Columns[0]
	assert.Equal(t, "id", id.Name)
	assert.Equal(t, 1, id.Position)
	assert.False(t, id.Nullable)
	assert.Equal(t, "PRI", id.Key)
	assert.Equal(t, "bigint", id.DataType)

	email := snap.Columns[1]
	assert.Equal(t, 2, email.Position)
	assert.True(t, email.Nullable, "nullable defaults to true")
	require.NotNil(t, email.Length)
	assert.Equal(t, int64(255), *email.Length)

	visitor := snap.Columns[2]
	assert.False(t, visitor.Nullable)
	require.NotNil(t, visitor.Default)
	assert.Equal(t, "0", *visitor.Default)

	require.Len(t, snap.Indexes, 1)
	assert.True(t, snap.Indexes[0].Unique)
	assert.Equal(t, []string{"email"}, snap.Indexes[0].Columns)

	require.Len(t, snap.ForeignKeys, 1)
	assert.Equal(t, "families", snap.ForeignKeys[0].RefTable)
}

func TestParsePrimaryKeyImpliesNotNull(t *testing.T) {
	snap, err := Parse([]byte(`database: x
tables:
  - name: t
    columns:
      - name: id
        type: bigint
        key: pri
`))
	require.NoError(t, err)
	assert.False(t, snap.Columns[0].Nullable)
	assert.Equal(t, "PRI", snap.Columns[0].Key)
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"no tables", "database: x\n", "no tables"},
		{"unnamed table", "tables:\n  - columns:\n      - {name: id, type: bigint}\n", "without a name"},
		{"duplicate table", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}]\n  - name: t\n    columns: [{name: id, type: bigint}]\n", "declared twice"},
		{"no columns", "tables:\n  - name: t\n", "no columns"},
		{"untyped column", "tables:\n  - name: t\n    columns: [{name: id}]\n", "no type"},
		{"duplicate column", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}, {name: id, type: bigint}]\n", "declared twice"},
		{"bad key role", "tables:\n  - name: t\n    columns: [{name: id, type: bigint, key: IDX}]\n", "unknown key role"},
		{"index unknown column", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}]\n    indexes: [{name: ix, columns: [missing]}]\n", "unknown column"},
		{"index no columns", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}]\n    indexes: [{name: ix}]\n", "covers no columns"},
		{"fk unknown column", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}]\n    foreign_keys: [{name: fk, column: missing, ref_table: r, ref_column: id}]\n", "unknown column"},
		{"fk no target", "tables:\n  - name: t\n    columns: [{name: id, type: bigint}]\n    foreign_keys: [{name: fk, column: id}]\n", "referenced table"},
		{"not yaml", "tables: [", "parse desired schema"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read desired schema")
}
