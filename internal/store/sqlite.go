package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteCheckpoint implements CheckpointStore using modernc.org/sqlite. It
// backs local and file-based runs where no Postgres is available; detection
// results still flow to whatever GapSink the run was given.
type SQLiteCheckpoint struct {
	db *sql.DB
}

// NewSQLiteCheckpoint opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLiteCheckpoint(dsn string) (*SQLiteCheckpoint, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteCheckpoint{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_checkpoints (
	run_name     TEXT NOT NULL,
	tile_id      TEXT NOT NULL,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_name, tile_id)
);

CREATE TABLE IF NOT EXISTS run_failures (
	run_name  TEXT NOT NULL,
	tile_id   TEXT NOT NULL,
	cause     TEXT NOT NULL,
	failed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_name, tile_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	run_name    TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	completed   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_checkpoints_run ON run_checkpoints(run_name);
CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_name);
`

func (s *SQLiteCheckpoint) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return classify("migrate", err)
}

func (s *SQLiteCheckpoint) Close() error {
	return s.db.Close()
}

func (s *SQLiteCheckpoint) LoadCheckpoint(ctx context.Context, runName string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tile_id FROM run_checkpoints WHERE run_name = ?`, runName)
	if err != nil {
		return nil, classify("load checkpoint", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var tileID string
		if err := rows.Scan(&tileID); err != nil {
			return nil, classify("scan checkpoint row", err)
		}
		done[tileID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate checkpoint rows", err)
	}
	return done, nil
}

func (s *SQLiteCheckpoint) AppendCheckpoint(ctx context.Context, runName, tileID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO run_checkpoints (run_name, tile_id) VALUES (?, ?)`,
		runName, tileID)
	if err != nil {
		return classify("append checkpoint", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM run_failures WHERE run_name = ? AND tile_id = ?`,
		runName, tileID)
	return classify("clear failure record", err)
}

func (s *SQLiteCheckpoint) MarkFailed(ctx context.Context, runName, tileID, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_failures (run_name, tile_id, cause) VALUES (?, ?, ?)
		 ON CONFLICT (run_name, tile_id) DO UPDATE SET cause = excluded.cause, failed_at = datetime('now')`,
		runName, tileID, cause)
	return classify("mark failed", err)
}

func (s *SQLiteCheckpoint) LoadFailed(ctx context.Context, runName string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tile_id, cause FROM run_failures WHERE run_name = ?`, runName)
	if err != nil {
		return nil, classify("load failed tiles", err)
	}
	defer rows.Close()

	failed := make(map[string]string)
	for rows.Next() {
		var tileID, cause string
		if err := rows.Scan(&tileID, &cause); err != nil {
			return nil, classify("scan failed tile row", err)
		}
		failed[tileID] = cause
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate failed tile rows", err)
	}
	return failed, nil
}

func (s *SQLiteCheckpoint) SaveRunSummary(ctx context.Context, sum RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_name, started_at, finished_at, completed, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.RunName, sum.StartedAt.UTC(), sum.FinishedAt.UTC(),
		sum.Completed, sum.Failed, sum.Skipped)
	return classify("save run summary", err)
}
