package dialect

import (
	"fmt"
	"strings"

	"chms_schema_engine/internal/schema"
)

// MySQL renders MySQL/InnoDB DDL.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQL) ColumnDefinition(c schema.ColumnInfo) string {
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
	if c.Extra != "" {
		b.WriteString(" ")
		b.WriteString(strings.ToUpper(c.Extra))
	}
	return b.String()
}

func (d MySQL) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, primaryKey []string) string {
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

	engine := t.Engine
	if engine == "" {
		engine = "InnoDB"
	}
	tail := fmt.Sprintf(" ENGINE=%s", engine)
	if t.Collation != "" {
		tail += fmt.Sprintf(" COLLATE=%s", t.Collation)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)%s", d.QuoteIdent(t.Name), strings.Join(defs, ",\n"), tail)
}

func (d MySQL) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(table))
}

func (d MySQL) AddColumn(c schema.ColumnInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(c.Table), d.ColumnDefinition(c))
}

func (d MySQL) ModifyColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.QuoteIdent(c.Table), d.ColumnDefinition(c))}
}

func (d MySQL) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func (d MySQL) CreateIndex(ix schema.IndexInfo) string {
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

func (d MySQL) DropIndex(table, index string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(index), d.QuoteIdent(table))
}

func (d MySQL) AddForeignKey(fk schema.ForeignKeyInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.QuoteIdent(fk.Table), d.QuoteIdent(fk.Name), d.QuoteIdent(fk.Column), d.QuoteIdent(fk.RefTable), d.QuoteIdent(fk.RefColumn))
}

func (d MySQL) DropForeignKey(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.QuoteIdent(table), d.QuoteIdent(name))
}
