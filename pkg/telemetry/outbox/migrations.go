package outbox

import (
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_batches",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS batches (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				payload TEXT NOT NULL,
				action_count INTEGER NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at INTEGER NOT NULL,
				delivered_at INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status, id)`,
		},
	},
}

// runMigrations applies every migration newer than the recorded version.
func (o *Outbox) runMigrations() error {
	if _, err := o.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return err
	}

	var current int
	if err := o.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		o.logger.Info("running migration", "version", m.version, "name", m.name)

		tx, err := o.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (o *Outbox) SchemaVersion() (int, error) {
	db, err := o.conn()
	if err != nil {
		return 0, err
	}
	defer o.mu.RUnlock()

	var v int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
