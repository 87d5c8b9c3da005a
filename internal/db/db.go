package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with personaengine-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Querier is implemented by both *sql.DB and *sql.Tx, so store helpers can
// run either standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// Every pooled connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the database location.
func (d *DB) Path() string { return d.path }

// WithTx runs fn inside a single transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS capabilities (
    persona_id TEXT PRIMARY KEY,
    expertise TEXT NOT NULL DEFAULT '[]',
    tools TEXT NOT NULL DEFAULT '[]',
    restrictions TEXT NOT NULL DEFAULT '[]',
    performance_metrics TEXT,
    learning_capabilities TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS persona_roles (
    id TEXT PRIMARY KEY,
    persona_id TEXT NOT NULL,
    role_type TEXT NOT NULL CHECK(role_type IN ('admin','specialist','assistant','observer','guest')),
    permissions TEXT NOT NULL DEFAULT '[]',
    role_description TEXT NOT NULL DEFAULT '',
    parent_role_id TEXT REFERENCES persona_roles(id),
    hierarchy_level INTEGER NOT NULL DEFAULT 1,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_roles_persona ON persona_roles(persona_id, active);
CREATE INDEX IF NOT EXISTS idx_roles_parent ON persona_roles(parent_role_id);

CREATE TABLE IF NOT EXISTS delegations (
    id TEXT PRIMARY KEY,
    from_persona TEXT NOT NULL,
    to_persona TEXT NOT NULL,
    task_description TEXT NOT NULL,
    required_capabilities TEXT NOT NULL DEFAULT '[]',
    priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low','medium','high','urgent')),
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','accepted','in_progress','completed','failed','cancelled')),
    result TEXT,
    metadata TEXT,
    scheduled_at TEXT,
    started_at TEXT,
    completed_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_delegations_to ON delegations(to_persona, status);
CREATE INDEX IF NOT EXISTS idx_delegations_from ON delegations(from_persona);

CREATE TABLE IF NOT EXISTS persona_lineage (
    id TEXT PRIMARY KEY,
    parent_persona TEXT NOT NULL,
    child_persona TEXT NOT NULL,
    merge_strategy TEXT NOT NULL CHECK(merge_strategy IN ('additive','override','selective','weighted','merged')),
    inheritance_percentage REAL NOT NULL DEFAULT 1.0 CHECK(inheritance_percentage >= 0 AND inheritance_percentage <= 1),
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lineage_parent ON persona_lineage(parent_persona, active);
CREATE INDEX IF NOT EXISTS idx_lineage_child ON persona_lineage(child_persona, active);

CREATE TABLE IF NOT EXISTS merge_audit (
    id TEXT PRIMARY KEY,
    primary_persona TEXT NOT NULL,
    secondary_personas TEXT NOT NULL DEFAULT '[]',
    merge_strategy TEXT NOT NULL,
    capability_diff TEXT NOT NULL DEFAULT '{}',
    permission_diff TEXT NOT NULL DEFAULT '{}',
    history_access_granted INTEGER NOT NULL DEFAULT 0,
    operator_id TEXT,
    integrity_hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_audit_primary ON merge_audit(primary_persona);
CREATE INDEX IF NOT EXISTS idx_merge_audit_created ON merge_audit(created_at);
`
