package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

const schemaVersion = 1

type migration struct {
	Version     int
	Description string
	Statements  []string
}

// Each migration is applied once and recorded in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: turns, clears",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS turns (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				role        TEXT NOT NULL,
				text        TEXT NOT NULL DEFAULT '',
				image_parts INTEGER NOT NULL DEFAULT 0,
				created_at  INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_time ON turns(created_at)`,
			`CREATE TABLE IF NOT EXISTS clears (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at  INTEGER NOT NULL
			)`,
		},
	},
}

// RunMigrations applies pending migrations. A statement that fails because
// its column or table already exists counts as applied.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("journal schema v%d is newer than supported v%d", current, schemaVersion)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying journal migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(stmt); err != nil {
				if alreadyApplied(err) {
					logger.Debug("migration statement skipped", "version", m.Version, "err", err)
					continue
				}
				_ = tx.Rollback()
				return fmt.Errorf("migration v%d: %w", m.Version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 for a fresh file.
func SchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
