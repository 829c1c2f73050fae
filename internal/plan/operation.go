package plan

// OpKind identifies one kind of migration step. The set is closed: every
// consumer switches over all kinds and treats anything else as a bug.
type OpKind int

const (
	OpCreateTables OpKind = iota
	OpAddColumns
	OpModifyColumns
	OpDropColumns
	OpCreateIndexes
	OpDropIndexes
	OpAddForeignKeys
	OpDropForeignKeys
	OpDropTables
)

var opKindNames = map[OpKind]string{
	OpCreateTables:    "create_tables",
	OpAddColumns:      "add_columns",
	OpModifyColumns:   "modify_columns",
	OpDropColumns:     "drop_columns",
	OpCreateIndexes:   "create_indexes",
	OpDropIndexes:     "drop_indexes",
	OpAddForeignKeys:  "add_foreign_keys",
	OpDropForeignKeys: "drop_foreign_keys",
	OpDropTables:      "drop_tables",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is one of the defined kinds.
func (k OpKind) Valid() bool {
	_, ok := opKindNames[k]
	return ok
}

// Destructive reports whether steps of this kind discard data irreversibly.
func (k OpKind) Destructive() bool {
	return k == OpDropColumns || k == OpDropTables
}

// MarshalText lets operations serialize with their snake_case tag.
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText restores an OpKind from its snake_case tag.
func (k *OpKind) UnmarshalText(text []byte) error {
	for kind, name := range opKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	*k = OpKind(-1)
	return nil
}

// Operation is one atomic, independently transacted step of a plan.
type Operation struct {
	Kind        OpKind   `json:"kind"`
	Description string   `json:"description"`
	Statements  []string `json:"statements"`
	Entities    []string `json:"entities"`
	// Reverts is -1 on forward operations. On rollback operations it is
	// the index of the forward operation being undone, so a partial
	// rollback can replay only the steps that actually committed.
	Reverts int `json:"reverts"`
}
