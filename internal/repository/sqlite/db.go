// Package sqlite provides the embedded, single-node task store.
// Uses WAL mode and a single connection so every transaction is serialized.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store implements the task, update-log and stats storage on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs idempotent schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			title             TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			assignee_id       INTEGER NOT NULL,
			assigner_id       INTEGER NOT NULL,
			org_id            INTEGER NOT NULL,
			deadline          INTEGER NOT NULL,
			status            TEXT NOT NULL DEFAULT 'assigned'
				CHECK (status IN ('assigned','in_progress','stuck','completed','cancelled')),
			priority          TEXT NOT NULL DEFAULT 'medium'
				CHECK (priority IN ('low','medium','high','urgent')),
			created_at        INTEGER NOT NULL,
			reminder_sent     INTEGER NOT NULL DEFAULT 0,
			deadline_notified INTEGER NOT NULL DEFAULT 0,
			completed_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id, org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_org_deadline ON tasks(org_id, deadline)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_reminder ON tasks(reminder_sent, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_escalation ON tasks(deadline_notified, deadline)`,

		`CREATE TABLE IF NOT EXISTS task_updates (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id    INTEGER NOT NULL REFERENCES tasks(id),
			actor_id   INTEGER NOT NULL,
			status     TEXT NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_updates_task ON task_updates(task_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_updates_created ON task_updates(created_at)`,

		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id         INTEGER NOT NULL,
			org_id          INTEGER NOT NULL,
			tasks_completed INTEGER NOT NULL DEFAULT 0,
			tasks_overdue   INTEGER NOT NULL DEFAULT 0,
			karma_points    INTEGER NOT NULL DEFAULT 0,
			last_updated    INTEGER NOT NULL,
			PRIMARY KEY (user_id, org_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("exec migration: %w\nSQL: %s", err, m)
		}
	}
	return s.upgradeTimestamps(ctx)
}

// schemaVersion 1: timestamps are unix nanoseconds (version 0 stored seconds).
const schemaVersion = 1

// upgradeTimestamps rescales second-resolution rows written by version 0.
func (s *Store) upgradeTimestamps(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// completed_at NULL stays NULL
	scale := int64(time.Second)
	rescale := []struct {
		stmt string
		args []any
	}{
		{`UPDATE tasks SET deadline = deadline * ?, created_at = created_at * ?, completed_at = completed_at * ?`, []any{scale, scale, scale}},
		{`UPDATE task_updates SET created_at = created_at * ?`, []any{scale}},
		{`UPDATE user_stats SET last_updated = last_updated * ?`, []any{scale}},
	}
	for _, r := range rescale {
		if _, err := tx.ExecContext(ctx, r.stmt, r.args...); err != nil {
			return fmt.Errorf("rescale timestamps: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// unix stores full nanosecond precision so deadline comparisons stay exact.
func unix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

func nullableUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
