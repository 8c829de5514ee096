package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/taskrota/internal/logging"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: users, tasks, settings",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add assign_runs table for batch history",
		SQL:         migration002SQL,
	},
}

// assigned_to is deliberately not a foreign key: users may leave the roster
// while their assignments stay behind.
const migration001SQL = `
CREATE TABLE users (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    role        TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE TABLE tasks (
    id                TEXT PRIMARY KEY,
    template_id       TEXT NOT NULL DEFAULT '',
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    category          TEXT NOT NULL,
    estimated_minutes INTEGER NOT NULL DEFAULT 0,
    due_date          TEXT NOT NULL,
    status            TEXT NOT NULL,
    assigned_to       TEXT,
    created_at        TEXT NOT NULL,
    completed_at      TEXT,
    actual_minutes    INTEGER
);

CREATE TABLE settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX idx_users_role ON users(role, created_at);
CREATE INDEX idx_tasks_category_due ON tasks(category, due_date);
CREATE INDEX idx_tasks_assigned ON tasks(assigned_to);
`

const migration002SQL = `
CREATE TABLE assign_runs (
    id              TEXT PRIMARY KEY,
    source          TEXT NOT NULL,
    strategy        TEXT NOT NULL,
    start_time      TEXT NOT NULL,
    end_time        TEXT NOT NULL,
    tasks_created   INTEGER NOT NULL DEFAULT 0,
    tasks_assigned  INTEGER NOT NULL DEFAULT 0,
    existing_today  INTEGER NOT NULL DEFAULT 0,
    failures        INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    error           TEXT
);

CREATE INDEX idx_assign_runs_time ON assign_runs(start_time DESC);
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	log := logging.Component("db")
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		log.Debugf("applied migration %d: %s", migration.Version, migration.Description)
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
