// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. They run during
// database initialization and every one is idempotent, so re-running on an
// already-migrated database is a no-op.
var migrationsList = []Migration{
	{"signed_reference_column", migrateSignedReferenceColumn},
	{"audit_session_column", migrateAuditSessionColumn},
	{"overdue_notices_table", migrateOverdueNoticesTable},
	{"task_results_name_index", migrateTaskResultsNameIndex},
	{"user_roles_active_column", migrateUserRolesActiveColumn},
}

// RunMigrations executes all registered migrations in order. An EXCLUSIVE
// transaction serializes migrations across processes that open the database
// at the same time.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

// columnExists checks whether a table already has a column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// migrateSignedReferenceColumn adds the signed_reference column to documents
// for databases created before the signed artifact pipeline existed.
func migrateSignedReferenceColumn(db *sql.DB) error {
	exists, err := columnExists(db, "documents", "signed_reference")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE documents ADD COLUMN signed_reference TEXT`)
	return err
}

// migrateAuditSessionColumn adds the nullable session_id column to
// audit_entries. Existing rows keep NULL, which the chain checksum ignores.
func migrateAuditSessionColumn(db *sql.DB) error {
	exists, err := columnExists(db, "audit_entries", "session_id")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE audit_entries ADD COLUMN session_id TEXT`)
	return err
}

// migrateOverdueNoticesTable backfills the overdue_notices table on databases
// created before per-day timeout notice tracking.
func migrateOverdueNoticesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS overdue_notices (
			workflow_id TEXT NOT NULL,
			notice_date TEXT NOT NULL,
			PRIMARY KEY (workflow_id, notice_date)
		)
	`)
	return err
}

// migrateTaskResultsNameIndex adds the per-name result index used by health
// reporting queries.
func migrateTaskResultsNameIndex(db *sql.DB) error {
	_, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_task_results_name ON task_results(name, recorded_at)`)
	return err
}

// migrateUserRolesActiveColumn adds the is_active column to user_roles for
// databases created when revocation deleted the membership row outright.
func migrateUserRolesActiveColumn(db *sql.DB) error {
	exists, err := columnExists(db, "user_roles", "is_active")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE user_roles ADD COLUMN is_active INTEGER NOT NULL DEFAULT 1`)
	return err
}
