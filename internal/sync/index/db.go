// Package index is the persistent metadata index mapping local paths
// to remote object identities. Mutual exclusion is structural: the
// task scheduler guarantees at most one task touches the index at a
// time, and the database keeps a single connection.
package index

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/gsyncd/internal/utils"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point lookups when no row matches
var ErrNotFound = errors.New("index: not found")

type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the index database and runs migrations
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, wrapDBErr(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db, path: path}
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
	if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
		return wrapDBErr(err)
	}
	return nil
}

// Reset drops all index state and re-runs migrations. Required after
// a fatal corruption before any task may execute again.
func (d *DB) Reset(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS tracked_files;
		DROP TABLE IF EXISTS sync_roots;
	`); err != nil {
		return wrapDBErr(err)
	}
	return d.Migrate(ctx)
}

// wrapDBErr maps storage failures onto the fatal status taxonomy:
// structural damage is INDEX_CORRUPT, everything else INDEX_IO.
func wrapDBErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	code := utils.CodeIndexIO
	if strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || strings.Contains(msg, "corrupt") {
		code = utils.CodeIndexCorrupt
	}
	return utils.NewSyncError(code, msg).Build()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_roots (
	app_id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	remote_root_id TEXT,
	conflict_policy TEXT,
	page_token TEXT
);

CREATE TABLE IF NOT EXISTS tracked_files (
	app_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	remote_id TEXT,
	kind TEXT NOT NULL DEFAULT 'regular',
	dirty INTEGER NOT NULL DEFAULT 0,
	dirty_source TEXT,
	conflicting INTEGER NOT NULL DEFAULT 0,
	change_type TEXT,
	local_mtime INTEGER,
	remote_mtime INTEGER,
	remote_version TEXT,
	deleted_remote INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (app_id, relative_path),
	FOREIGN KEY (app_id) REFERENCES sync_roots(app_id)
);

CREATE INDEX IF NOT EXISTS idx_tracked_remote_id ON tracked_files(remote_id);
CREATE INDEX IF NOT EXISTS idx_tracked_dirty ON tracked_files(dirty);
`
