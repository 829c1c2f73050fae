// Package dialect renders target-native DDL for plan operations. Column and
// table definitions are rendered from the desired entity's declared type,
// length/precision, nullability and default; nothing is inferred.
package dialect

import (
	"fmt"
	"strings"

	"chms_schema_engine/internal/schema"
)

// Dialect synthesizes DDL for one database engine.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	ColumnDefinition(c schema.ColumnInfo) string
	CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, primaryKey []string) string
	DropTable(table string) string
	AddColumn(c schema.ColumnInfo) string
	ModifyColumn(c schema.ColumnInfo) []string
	DropColumn(table, column string) string
	CreateIndex(ix schema.IndexInfo) string
	DropIndex(table, index string) string
	AddForeignKey(fk schema.ForeignKeyInfo) string
	DropForeignKey(table, name string) string
}

// ForEngine returns the dialect for a configured engine name.
func ForEngine(engine string) (Dialect, error) {
	switch strings.ToLower(engine) {
	case "mysql":
		return MySQL{}, nil
	case "postgres":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %s", engine)
	}
}

// columnType renders the declared type with its length or precision/scale.
func columnType(c schema.ColumnInfo) string {
	switch {
	case c.Length != nil:
		return fmt.Sprintf("%s(%d)", c.DataType, *c.Length)
	case c.Precision != nil && c.Scale != nil:
		return fmt.Sprintf("%s(%d,%d)", c.DataType, *c.Precision, *c.Scale)
	case c.Precision != nil:
		return fmt.Sprintf("%s(%d)", c.DataType, *c.Precision)
	default:
		return c.DataType
	}
}

// defaultLiteral renders a column default. Numeric literals and recognized
// SQL keywords stay bare, everything else is single-quoted.
func defaultLiteral(v string) string {
	trimmed := strings.TrimSpace(v)
	upper := strings.ToUpper(trimmed)
	if upper == "NULL" || upper == "CURRENT_TIMESTAMP" || upper == "CURRENT_TIMESTAMP()" || upper == "NOW()" || upper == "TRUE" || upper == "FALSE" {
		return upper
	}
	if isNumericLiteral(trimmed) {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") && len(trimmed) >= 2 {
		return trimmed
	}
	return "'" + strings.ReplaceAll(trimmed, "'", "''") + "'"
}

func isNumericLiteral(v string) bool {
	if v == "" {
		return false
	}
	dot := false
	for i, r := range v {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' && i == 0:
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return v != "-" && v != "."
}
