// Package desired parses the YAML document that declares the schema a
// database should converge to, and turns it into the same snapshot shape
// the catalog produces so the planner can diff the two directly.
package desired

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chms_schema_engine/internal/schema"
)

// Document is the top-level desired-schema file.
type Document struct {
	Database string  `yaml:"database"`
	Tables   []Table `yaml:"tables"`
}

// Table declares one table and everything attached to it.
type Table struct {
	Name        string       `yaml:"name"`
	Engine      string       `yaml:"engine"`
	Collation   string       `yaml:"collation"`
	Columns     []Column     `yaml:"columns"`
	Indexes     []Index      `yaml:"indexes"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys"`
}

// Column declares one column. Nullable defaults to true unless the
// column is part of the primary key.
type Column struct {
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Length    *int64  `yaml:"length"`
	Precision *int64  `yaml:"precision"`
	Scale     *int64  `yaml:"scale"`
	Nullable  *bool   `yaml:"nullable"`
	Default   *string `yaml:"default"`
	Key       string  `yaml:"key"`
	Extra     string  `yaml:"extra"`
}

type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

type ForeignKey struct {
	Name      string `yaml:"name"`
	Column    string `yaml:"column"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
}

// Load reads and parses a desired-schema file.
func Load(path string) (schema.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("read desired schema: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a desired-schema document and validates it before
// converting it to a snapshot.
func Parse(raw []byte) (schema.Snapshot, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return schema.Snapshot{}, fmt.Errorf("parse desired schema: %w", err)
	}
	if err := doc.validate(); err != nil {
		return schema.Snapshot{}, err
	}
	return doc.snapshot(), nil
}

var keyRoles = map[string]struct{}{"": {}, "PRI": {}, "UNI": {}, "MUL": {}}

func (d Document) validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("desired schema declares no tables")
	}
	seen := map[string]struct{}{}
	for _, t := range d.Tables {
		if t.Name == "" {
			return fmt.Errorf("desired schema contains a table without a name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("table %s declared twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %s declares no columns", t.Name)
		}
		cols := map[string]struct{}{}
		for _, c := range t.Columns {
			if c.Name == "" {
				return fmt.Errorf("table %s contains a column without a name", t.Name)
			}
			if c.Type == "" {
				return fmt.Errorf("column %s.%s has no type", t.Name, c.Name)
			}
			if _, dup := cols[c.Name]; dup {
				return fmt.Errorf("column %s.%s declared twice", t.Name, c.Name)
			}
			cols[c.Name] = struct{}{}
			if _, ok := keyRoles[strings.ToUpper(c.Key)]; !ok {
				return fmt.Errorf("column %s.%s has unknown key role %q", t.Name, c.Name, c.Key)
			}
		}
		for _, ix := range t.Indexes {
			if ix.Name == "" {
				return fmt.Errorf("table %s contains an index without a name", t.Name)
			}
			if len(ix.Columns) == 0 {
				return fmt.Errorf("index %s on %s covers no columns", ix.Name, t.Name)
			}
			for _, col := range ix.Columns {
				if _, ok := cols[col]; !ok {
					return fmt.Errorf("index %s on %s references unknown column %s", ix.Name, t.Name, col)
				}
			}
		}
		for _, fk := range t.ForeignKeys {
			if fk.Name == "" {
				return fmt.Errorf("table %s contains a foreign key without a name", t.Name)
			}
			if _, ok := cols[fk.Column]; !ok {
				return fmt.Errorf("foreign key %s on %s references unknown column %s", fk.Name, t.Name, fk.Column)
			}
			if fk.RefTable == "" || fk.RefColumn == "" {
				return fmt.Errorf("foreign key %s on %s has no referenced table or column", fk.Name, t.Name)
			}
		}
	}
	return nil
}

func (d Document) snapshot() schema.Snapshot {
	snap := schema.Snapshot{
		Database:   d.Database,
		CapturedAt: time.Now().UTC(),
	}
	for _, t := range d.Tables {
		snap.Tables = append(snap.Tables, schema.TableInfo{
			Name:      t.Name,
			Engine:    t.Engine,
			Collation: t.Collation,
		})
		for i, c := range t.Columns {
			key := strings.ToUpper(c.Key)
			nullable := true
			if c.Nullable != nil {
				nullable = *c.Nullable
			} else if key == "PRI" {
				nullable = false
			}
			snap.Columns = append(snap.Columns, schema.ColumnInfo{
				Table:     t.Name,
				Name:      c.Name,
				Position:  i + 1,
				Nullable:  nullable,
				DataType:  strings.ToLower(c.Type),
				Length:    c.Length,
				Precision: c.Precision,
				Scale:     c.Scale,
				Default:   c.Default,
				Key:       key,
				Extra:     c.Extra,
			})
		}
		for _, ix := range t.Indexes {
			snap.Indexes = append(snap.Indexes, schema.IndexInfo{
				Table:   t.Name,
				Name:    ix.Name,
				Unique:  ix.Unique,
				Columns: append([]string(nil), ix.Columns...),
			})
		}
		for _, fk := range t.ForeignKeys {
			snap.ForeignKeys = append(snap.ForeignKeys, schema.ForeignKeyInfo{
				Name:      fk.Name,
				Table:     t.Name,
				Column:    fk.Column,
				RefTable:  fk.RefTable,
				RefColumn: fk.RefColumn,
			})
		}
	}
	return snap
}
