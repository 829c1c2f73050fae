package schema

import "time"

// Snapshot is an immutable point-in-time description of one database's
// structure. It is produced by a catalog read or by parsing a desired-schema
// document; once captured it is never mutated.
type Snapshot struct {
	Database    string           `json:"database"`
	Tables      []TableInfo      `json:"tables"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
	Constraints []ConstraintInfo `json:"constraints"`
	CapturedAt  time.Time        `json:"captured_at"`
}

// TableInfo describes one base table. RowCount is the count reported at
// capture time; for catalog snapshots it may be an engine estimate.
type TableInfo struct {
	Name      string     `json:"name"`
	Engine    string     `json:"engine,omitempty"`
	Collation string     `json:"collation,omitempty"`
	RowCount  int64      `json:"row_count"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	// System marks tables the engine itself depends on (the execution
	// ledger). System tables never participate in diffing or drops.
	System bool `json:"system,omitempty"`
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Table     string  `json:"table"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Nullable  bool    `json:"nullable"`
	DataType  string  `json:"data_type"`
	Length    *int64  `json:"length,omitempty"`
	Precision *int64  `json:"precision,omitempty"`
	Scale     *int64  `json:"scale,omitempty"`
	Default   *string `json:"default,omitempty"`
	Key       string  `json:"key,omitempty"`
	Extra     string  `json:"extra,omitempty"`
}

// IndexInfo describes a secondary index. Columns are in sequence order.
type IndexInfo struct {
	Table   string   `json:"table"`
	Name    string   `json:"name"`
	Unique  bool     `json:"unique"`
	Columns []string `json:"columns"`
}

// ForeignKeyInfo describes a single-column foreign key.
type ForeignKeyInfo struct {
	Name      string `json:"name"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// ConstraintInfo describes a named table constraint and its kind
// (PRIMARY KEY, UNIQUE, FOREIGN KEY, CHECK).
type ConstraintInfo struct {
	Name  string `json:"name"`
	Table string `json:"table"`
	Kind  string `json:"kind"`
}
