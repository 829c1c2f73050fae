package dialect

import (
	"fmt"
	"strings"

	"chms_schema_engine/internal/schema"
)

// Postgres renders PostgreSQL DDL. Column modifications expand into one
// ALTER statement per changed attribute, since Postgres has no single
// MODIFY COLUMN form.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Postgres) ColumnDefinition(c schema.ColumnInfo) string {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(defaultLiteral(*c.Default))
	}
	return b.String()
}

func (d Postgres) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, primaryKey []string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, "  "+d.ColumnDefinition(c))
	}
	if len(primaryKey) > 0 {
		quoted := make([]string, len(primaryKey))
		for i, col := range primaryKey {
			quoted[i] = d.QuoteIdent(col)
		}
		defs = append(defs, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.QuoteIdent(t.Name), strings.Join(defs, ",\n"))
}

func (d Postgres) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(table))
}

func (d Postgres) AddColumn(c schema.ColumnInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(c.Table), d.ColumnDefinition(c))
}

func (d Postgres) ModifyColumn(c schema.ColumnInfo) []string {
	table := d.QuoteIdent(c.Table)
	col := d.QuoteIdent(c.Name)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, col, columnType(c)),
	}
	if c.Nullable {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, col))
	} else {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, col))
	}
	if c.Default != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, col, defaultLiteral(*c.Default)))
	} else {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, col))
	}
	return stmts
}

func (d Postgres) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func (d Postgres) CreateIndex(ix schema.IndexInfo) string {
	quoted := make([]string, len(ix.Columns))
	for i, col := range ix.Columns {
		quoted[i] = d.QuoteIdent(col)
	}
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.QuoteIdent(ix.Name), d.QuoteIdent(ix.Table), strings.Join(quoted, ", "))
}

func (d Postgres) DropIndex(_, index string) string {
	return fmt.Sprintf("DROP INDEX %s", d.QuoteIdent(index))
}

func (d Postgres) AddForeignKey(fk schema.ForeignKeyInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.QuoteIdent(fk.Table), d.QuoteIdent(fk.Name), d.QuoteIdent(fk.Column), d.QuoteIdent(fk.RefTable), d.QuoteIdent(fk.RefColumn))
}

func (d Postgres) DropForeignKey(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.QuoteIdent(table), d.QuoteIdent(name))
}
