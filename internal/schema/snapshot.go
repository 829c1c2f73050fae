package schema

import (
	"sort"
	"strings"
)

// Table returns the named table, if present.
func (s Snapshot) Table(name string) (TableInfo, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}

// HasTable reports whether the snapshot contains the named table.
func (s Snapshot) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// TableColumns returns the table's columns ordered by ordinal position.
func (s Snapshot) TableColumns(table string) []ColumnInfo {
	var cols []ColumnInfo
	for _, c := range s.Columns {
		if c.Table == table {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	return cols
}

// Column returns one column of a table, if present.
func (s Snapshot) Column(table, name string) (ColumnInfo, bool) {
	for _, c := range s.Columns {
		if c.Table == table && c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// TableIndexes returns the table's secondary indexes sorted by name.
func (s Snapshot) TableIndexes(table string) []IndexInfo {
	var out []IndexInfo
	for _, ix := range s.Indexes {
		if ix.Table == table {
			out = append(out, ix)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Index returns one index of a table, if present.
func (s Snapshot) Index(table, name string) (IndexInfo, bool) {
	for _, ix := range s.Indexes {
		if ix.Table == table && ix.Name == name {
			return ix, true
		}
	}
	return IndexInfo{}, false
}

// TableForeignKeys returns the table's foreign keys sorted by name.
func (s Snapshot) TableForeignKeys(table string) []ForeignKeyInfo {
	var out []ForeignKeyInfo
	for _, fk := range s.ForeignKeys {
		if fk.Table == table {
			out = append(out, fk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PrimaryKey returns the table's primary-key column names in ordinal order.
func (s Snapshot) PrimaryKey(table string) []string {
	var pk []string
	for _, c := range s.TableColumns(table) {
		if strings.EqualFold(c.Key, "PRI") {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Equal reports whether two snapshots describe the same structure. System
// tables, row counts, positions and capture timestamps are ignored; only
// names and declared attributes are compared.
func Equal(a, b Snapshot) bool {
	aTables := userTables(a)
	bTables := userTables(b)
	if len(aTables) != len(bTables) {
		return false
	}
	for name := range aTables {
		if _, ok := bTables[name]; !ok {
			return false
		}
		if !tableEqual(a, b, name) {
			return false
		}
	}
	return true
}

func userTables(s Snapshot) map[string]TableInfo {
	out := make(map[string]TableInfo, len(s.Tables))
	for _, t := range s.Tables {
		if t.System {
			continue
		}
		out[t.Name] = t
	}
	return out
}

func tableEqual(a, b Snapshot, table string) bool {
	aCols := a.TableColumns(table)
	bCols := b.TableColumns(table)
	if len(aCols) != len(bCols) {
		return false
	}
	for _, ac := range aCols {
		bc, ok := b.Column(table, ac.Name)
		if !ok || !ColumnsEquivalent(ac, bc) {
			return false
		}
	}

	aIdx := a.TableIndexes(table)
	bIdx := b.TableIndexes(table)
	if len(aIdx) != len(bIdx) {
		return false
	}
	for _, ai := range aIdx {
		bi, ok := b.Index(table, ai.Name)
		if !ok || ai.Unique != bi.Unique || !equalStrings(ai.Columns, bi.Columns) {
			return false
		}
	}

	aFKs := a.TableForeignKeys(table)
	bFKs := b.TableForeignKeys(table)
	if len(aFKs) != len(bFKs) {
		return false
	}
	for i := range aFKs {
		if aFKs[i] != bFKs[i] {
			return false
		}
	}
	return true
}

// ColumnsEquivalent compares the declared attributes of two columns. Data
// types compare case-insensitively and defaults are compared trimmed, the
// way catalog metadata reports them.
func ColumnsEquivalent(a, b ColumnInfo) bool {
	return strings.EqualFold(a.DataType, b.DataType) &&
		a.Nullable == b.Nullable &&
		int64PtrEqual(a.Length, b.Length) &&
		int64PtrEqual(a.Precision, b.Precision) &&
		int64PtrEqual(a.Scale, b.Scale) &&
		normalizeDefault(a.Default) == normalizeDefault(b.Default)
}

func normalizeDefault(v *string) string {
	if v == nil {
		return "\x00nil"
	}
	return strings.Trim(strings.TrimSpace(*v), "'")
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
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
