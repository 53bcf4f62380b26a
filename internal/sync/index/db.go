package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the run history ledger
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	direction TEXT NOT NULL,
	organisation TEXT NOT NULL,
	repositories TEXT,
	local_dir TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	files_skipped INTEGER NOT NULL DEFAULT 0,
	files_transferred INTEGER NOT NULL DEFAULT 0,
	files_failed INTEGER NOT NULL DEFAULT 0,
	packages_skipped INTEGER NOT NULL DEFAULT 0,
	packages_created INTEGER NOT NULL DEFAULT 0,
	packages_failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_failures (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	path TEXT NOT NULL,
	code TEXT,
	message TEXT,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
