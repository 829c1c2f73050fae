// Package catalog reads the structural metadata of a live database. All
// reads hit the database directly; nothing is cached, so existence checks
// stay consistent with what Snapshot would report at the same instant.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"chms_schema_engine/internal/config"
	"chms_schema_engine/internal/schema"
)

// ErrCatalogUnavailable wraps connection-level failures so callers can tell
// "the metadata store is unreachable" apart from a bad query.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// systemTables are the engine's own bookkeeping tables. They are flagged in
// snapshots and excluded from diffing, drops and backups; without this the
// planner would perpetually propose dropping its own audit trail.
var systemTables = map[string]struct{}{
	"schema_migration_executions": {},
}

// IsSystemTable reports whether a table belongs to the engine itself.
func IsSystemTable(name string) bool {
	_, ok := systemTables[name]
	return ok
}

// Catalog answers structural questions about one live database.
type Catalog interface {
	Engine() string
	Snapshot(ctx context.Context) (schema.Snapshot, error)
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	IndexExists(ctx context.Context, table, index string) (bool, error)
	TableRowCount(ctx context.Context, table string) (int64, error)
	CreateTableStatement(ctx context.Context, table string) (string, error)
}

// Connect opens a database handle for the configured engine. The caller
// owns the handle and closes it.
func Connect(cfg config.Config) (*sql.DB, error) {
	switch cfg.Engine {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, err
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetMaxOpenConns(5)
		return db, nil
	case "mysql":
		// Validate DSN early to provide actionable errors.
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, err
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetMaxOpenConns(5)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported engine %s", cfg.Engine)
	}
}

// New wraps an open handle in the engine's catalog implementation.
// schemaName may be empty; each implementation then resolves the current
// database/schema itself.
func New(engine string, db *sql.DB, schemaName string) (Catalog, error) {
	switch strings.ToLower(engine) {
	case "mysql":
		return &MySQLCatalog{db: db, schema: schemaName}, nil
	case "postgres":
		return &PostgresCatalog{db: db, schema: schemaName}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %s", engine)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
