package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go-antinuke-guard/internal/logging"
)

// ErrNotProvisioned is returned for guilds that never ran setup. Callers
// treat such guilds as disabled.
var ErrNotProvisioned = errors.New("database: guild not provisioned")

// SQLiteStore persists per-guild protection configuration.
type SQLiteStore struct {
	db       *sql.DB
	now      func() time.Time
	policies *policyCache
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
}

// Open creates or migrates the database at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now, policies: newPolicyCache(DefaultPolicyTTL)}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Info().Str("path", path).Msg("database ready")
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		features TEXT NOT NULL DEFAULT '{}',
		owner_id TEXT NOT NULL DEFAULT '',
		quarantine_role_id TEXT NOT NULL DEFAULT '',
		log_channel_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS limits (
		guild_id TEXT NOT NULL,
		action TEXT NOT NULL,
		max_count INTEGER NOT NULL,
		window_ms INTEGER NOT NULL,
		punishment TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, action)
	);

	CREATE TABLE IF NOT EXISTS whitelist (
		guild_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, target_id, target_type)
	);

	CREATE TABLE IF NOT EXISTS extra_owners (
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		added_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS quarantine (
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		roles TEXT NOT NULL DEFAULT '[]',
		reason TEXT NOT NULL DEFAULT '',
		manual INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		punishment TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_guild ON incidents(guild_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) stamp() int64 {
	return s.now().UnixMilli()
}

func fromStamp(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
