package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the ordered schema history. Each entry runs at most once;
// applied versions are recorded in schema_migrations.
var migrations = []struct {
	version     int
	description string
	statements  []string
}{
	{
		version:     1,
		description: "create rooms, memberships, and bookings",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS rooms (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL CHECK (length(trim(name)) > 0),
				description TEXT,
				created_by  TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS memberships (
				id       TEXT PRIMARY KEY,
				room_id  TEXT NOT NULL REFERENCES rooms(id),
				user_id  TEXT,
				email    TEXT NOT NULL,
				role     TEXT NOT NULL CHECK (role IN ('admin', 'user')),
				added_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS memberships_room_email
				ON memberships(room_id, email) WHERE email <> ''`,
			`CREATE INDEX IF NOT EXISTS memberships_user_id ON memberships(user_id)`,
			`CREATE INDEX IF NOT EXISTS memberships_email ON memberships(email)`,
			`CREATE TABLE IF NOT EXISTS bookings (
				id          TEXT PRIMARY KEY,
				room_id     TEXT NOT NULL REFERENCES rooms(id),
				start_time  TEXT NOT NULL,
				end_time    TEXT NOT NULL,
				description TEXT,
				created_by  TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL,
				CHECK (end_time > start_time)
			)`,
			`CREATE INDEX IF NOT EXISTS bookings_room_start ON bookings(room_id, start_time)`,
		},
	},
}

// Migrate applies every pending migration in version order, each inside its
// own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.DB().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to initialise schema_migrations: %w", err)
	}

	var current sql.NullInt64
	if err := s.pool.DB().QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if current.Valid && int64(migration.version) <= current.Int64 {
			continue
		}

		err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, statement := range migration.statements {
				if _, err := tx.Exec(statement); err != nil {
					return fmt.Errorf("migration %d (%s): %w", migration.version, migration.description, err)
				}
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, migration.version)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}
