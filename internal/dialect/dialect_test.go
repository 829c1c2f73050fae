package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chms_schema_engine/internal/schema"
)

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func TestForEngine(t *testing.T) {
	d, err := ForEngine("MySQL")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = ForEngine("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = ForEngine("oracle")
	assert.Error(t, err)
}

func TestMySQLCreateTable(t *testing.T) {
	d := MySQL{}
	got := d.CreateTable(
		schema.TableInfo{Name: "events", Collation: "utf8mb4_unicode_ci"},
		[]schema.ColumnInfo{
			{Table: "events", Name: "id", DataType: "bigint", Key: "PRI", Extra: "auto_increment"},
			{Table: "events", Name: "name", DataType: "varchar", Length: i64(160)},
			{Table: "events", Name: "starts_at", DataType: "datetime", Default: str("CURRENT_TIMESTAMP")},
			{Table: "events", Name: "notes", DataType: "text", Nullable: true},
		},
		[]string{"id"},
	)
	want := "CREATE TABLE `events` (\n" +
		"  `id` bigint NOT NULL AUTO_INCREMENT,\n" +
		"  `name` varchar(160) NOT NULL,\n" +
		"  `starts_at` datetime NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
		"  `notes` text,\n" +
		"  PRIMARY KEY (`id`)\n" +
		") ENGINE=InnoDB COLLATE=utf8mb4_unicode_ci"
	assert.Equal(t, want, got)
}

func TestMySQLAlterStatements(t *testing.T) {
	d := MySQL{}

	col := schema.ColumnInfo{Table: "individuals", Name: "is_visitor", DataType: "tinyint", Default: str("0")}
	assert.Equal(t,
		"ALTER TABLE `individuals` ADD COLUMN `is_visitor` tinyint NOT NULL DEFAULT 0",
		d.AddColumn(col))

	mods := d.ModifyColumn(schema.ColumnInfo{Table: "individuals", Name: "email", Nullable: true, DataType: "varchar", Length: i64(255)})
	require.Len(t, mods, 1)
	assert.Equal(t, "ALTER TABLE `individuals` MODIFY COLUMN `email` varchar(255)", mods[0])

	assert.Equal(t, "ALTER TABLE `individuals` DROP COLUMN `legacy_notes`",
		d.DropColumn("individuals", "legacy_notes"))

	assert.Equal(t, "CREATE UNIQUE INDEX `idx_individuals_email` ON `individuals` (`email`)",
		d.CreateIndex(schema.IndexInfo{Table: "individuals", Name: "idx_individuals_email", Unique: true, Columns: []string{"email"}}))

	assert.Equal(t, "DROP INDEX `idx_individuals_email` ON `individuals`",
		d.DropIndex("individuals", "idx_individuals_email"))

	assert.Equal(t,
		"ALTER TABLE `attendance_records` ADD CONSTRAINT `fk_attendance_individual` FOREIGN KEY (`individual_id`) REFERENCES `individuals` (`id`)",
		d.AddForeignKey(schema.ForeignKeyInfo{
			Name: "fk_attendance_individual", Table: "attendance_records",
			Column: "individual_id", RefTable: "individuals", RefColumn: "id",
		}))

	assert.Equal(t, "ALTER TABLE `attendance_records` DROP FOREIGN KEY `fk_attendance_individual`",
		d.DropForeignKey("attendance_records", "fk_attendance_individual"))
}

func TestPostgresModifyColumn(t *testing.T) {
	d := Postgres{}
	got := d.ModifyColumn(schema.ColumnInfo{
		Table: "individuals", Name: "email",
		DataType: "varchar", Length: i64(255), Default: str("unknown"),
	})
	require.Len(t, got, 3)
	assert.Equal(t, `ALTER TABLE "individuals" ALTER COLUMN "email" TYPE varchar(255)`, got[0])
	assert.Equal(t, `ALTER TABLE "individuals" ALTER COLUMN "email" SET NOT NULL`, got[1])
	assert.Equal(t, `ALTER TABLE "individuals" ALTER COLUMN "email" SET DEFAULT 'unknown'`, got[2])

	got = d.ModifyColumn(schema.ColumnInfo{Table: "individuals", Name: "email", Nullable: true, DataType: "text"})
	require.Len(t, got, 3)
	assert.Equal(t, `ALTER TABLE "individuals" ALTER COLUMN "email" DROP NOT NULL`, got[1])
	assert.Equal(t, `ALTER TABLE "individuals" ALTER COLUMN "email" DROP DEFAULT`, got[2])
}

func TestPostgresIndexAndConstraints(t *testing.T) {
	d := Postgres{}
	assert.Equal(t, `DROP INDEX "idx_individuals_email"`, d.DropIndex("individuals", "idx_individuals_email"))
	assert.Equal(t, `ALTER TABLE "individuals" DROP CONSTRAINT "fk_individuals_family"`,
		d.DropForeignKey("individuals", "fk_individuals_family"))
}

func TestQuoteIdentEscapes(t *testing.T) {
	assert.Equal(t, "`odd``name`", MySQL{}.QuoteIdent("odd`name"))
	assert.Equal(t, `"odd""name"`, Postgres{}.QuoteIdent(`odd"name`))
}

func TestDefaultLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"-12.5", "-12.5"},
		{"current_timestamp", "CURRENT_TIMESTAMP"},
		{"NULL", "NULL"},
		{"active", "'active'"},
		{"it's", "'it''s'"},
		{"'quoted'", "'quoted'"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, defaultLiteral(tc.in), "input %q", tc.in)
	}
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "varchar(80)", columnType(schema.ColumnInfo{DataType: "varchar", Length: i64(80)}))
	assert.Equal(t, "decimal(10,2)", columnType(schema.ColumnInfo{DataType: "decimal", Precision: i64(10), Scale: i64(2)}))
	assert.Equal(t, "bigint(20)", columnType(schema.ColumnInfo{DataType: "bigint", Precision: i64(20)}))
	assert.Equal(t, "datetime", columnType(schema.ColumnInfo{DataType: "datetime"}))
}
