// Package storage opens the local SQLite database that backs the dispatch
// journal.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. Paths on network mounts are refused. ":memory:" is accepted
// for tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := prepareJournalDir(path, detectFilesystemType); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dispatch_log (
  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
  utterance_id TEXT NOT NULL,
  source       TEXT NOT NULL,
  text         TEXT NOT NULL,
  normalized   TEXT NOT NULL,
  intent       INTEGER NOT NULL,
  action       INTEGER NOT NULL,
  score        REAL NOT NULL DEFAULT 0,
  reason       TEXT NOT NULL,
  accepted     INTEGER NOT NULL,
  sent         INTEGER NOT NULL,
  posture      TEXT NOT NULL,
  error        TEXT,
  heard_at     TEXT NOT NULL,
  decided_at   TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS dispatch_log_decided_at_idx ON dispatch_log(decided_at);`,
		`CREATE INDEX IF NOT EXISTS dispatch_log_reason_idx ON dispatch_log(reason);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
