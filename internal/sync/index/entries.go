package index

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dl-alexandre/gsyncd/internal/types"
)

const trackedColumns = `app_id, relative_path, remote_id, kind, dirty, dirty_source, conflicting,
	change_type, local_mtime, remote_mtime, remote_version, deleted_remote`

func (d *DB) Upsert(ctx context.Context, file TrackedFile) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO tracked_files (`+trackedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, relative_path) DO UPDATE SET
			remote_id = excluded.remote_id,
			kind = excluded.kind,
			dirty = excluded.dirty,
			dirty_source = excluded.dirty_source,
			conflicting = excluded.conflicting,
			change_type = excluded.change_type,
			local_mtime = excluded.local_mtime,
			remote_mtime = excluded.remote_mtime,
			remote_version = excluded.remote_version,
			deleted_remote = excluded.deleted_remote
	`, file.AppID, file.RelativePath, file.RemoteID, string(file.Kind), boolToInt(file.Dirty),
		string(file.DirtySource), boolToInt(file.Conflicting), string(file.ChangeType),
		file.LocalMTime, file.RemoteMTime, file.RemoteVersion, boolToInt(file.DeletedRemote))
	return wrapDBErr(err)
}

func (d *DB) GetByPath(ctx context.Context, appID, relPath string) (*TrackedFile, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+trackedColumns+` FROM tracked_files WHERE app_id = ? AND relative_path = ?
	`, appID, relPath)
	return scanOne(row)
}

func (d *DB) GetByRemoteID(ctx context.Context, remoteID string) (*TrackedFile, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+trackedColumns+` FROM tracked_files WHERE remote_id = ? LIMIT 1
	`, remoteID)
	return scanOne(row)
}

// FindAppRoot returns the app-root tracked file for an application,
// or ErrNotFound.
func (d *DB) FindAppRoot(ctx context.Context, appID string) (*TrackedFile, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+trackedColumns+` FROM tracked_files
		WHERE app_id = ? AND kind = ? LIMIT 1
	`, appID, string(types.KindAppRoot))
	return scanOne(row)
}

// ListDirty returns dirty entries for the given pipeline, oldest
// first, enabled roots only. An empty source lists every dirty entry.
func (d *DB) ListDirty(ctx context.Context, source types.SyncDirection, limit int) ([]TrackedFile, error) {
	query := `
		SELECT ` + prefixedTrackedColumns("f") + ` FROM tracked_files f
		JOIN sync_roots r ON r.app_id = f.app_id
		WHERE f.dirty = 1 AND r.enabled = 1`
	args := []interface{}{}
	if source != "" {
		query += ` AND f.dirty_source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY f.local_mtime, f.relative_path`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return d.queryFiles(ctx, query, args...)
}

func (d *DB) CountDirty(ctx context.Context) (int, error) {
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracked_files WHERE dirty = 1`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, wrapDBErr(err)
	}
	return count, nil
}

func (d *DB) HasDirty(ctx context.Context) (bool, error) {
	count, err := d.CountDirty(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DB) ListConflicting(ctx context.Context) ([]TrackedFile, error) {
	return d.queryFiles(ctx, `
		SELECT `+prefixedTrackedColumns("f")+` FROM tracked_files f
		JOIN sync_roots r ON r.app_id = f.app_id
		WHERE f.conflicting = 1 AND r.enabled = 1
		ORDER BY f.relative_path
	`)
}

// MarkClean clears the dirty and conflicting flags after a syncer
// applies the pending change.
func (d *DB) MarkClean(ctx context.Context, appID, relPath string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE tracked_files SET dirty = 0, dirty_source = '', conflicting = 0, change_type = '', deleted_remote = 0
		WHERE app_id = ? AND relative_path = ?
	`, appID, relPath)
	return wrapDBErr(err)
}

func (d *DB) Delete(ctx context.Context, appID, relPath string) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM tracked_files WHERE app_id = ? AND relative_path = ?
	`, appID, relPath)
	return wrapDBErr(err)
}

func (d *DB) Dump(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{}

	rows, err := d.db.QueryContext(ctx, `
		SELECT app_id, label, enabled, remote_root_id, conflict_policy, page_token
		FROM sync_roots ORDER BY app_id
	`)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	for rows.Next() {
		root, err := scanRoot(rows)
		if err != nil {
			_ = rows.Close()
			return nil, wrapDBErr(err)
		}
		snapshot.Roots = append(snapshot.Roots, root)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, wrapDBErr(err)
	}
	if err := rows.Close(); err != nil {
		return nil, wrapDBErr(err)
	}

	files, err := d.queryFiles(ctx, `
		SELECT `+trackedColumns+` FROM tracked_files ORDER BY app_id, relative_path
	`)
	if err != nil {
		return nil, err
	}
	snapshot.Files = files
	return snapshot, nil
}

func (d *DB) queryFiles(ctx context.Context, query string, args ...interface{}) (files []TrackedFile, err error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = wrapDBErr(closeErr)
		}
	}()

	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, wrapDBErr(err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(err)
	}
	return files, nil
}

func scanOne(row *sql.Row) (*TrackedFile, error) {
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapDBErr(err)
	}
	return &file, nil
}

func scanFile(scanner interface {
	Scan(dest ...interface{}) error
}) (TrackedFile, error) {
	var file TrackedFile
	var kind, dirtySource, changeType string
	var dirty, conflicting, deletedRemote int
	err := scanner.Scan(&file.AppID, &file.RelativePath, &file.RemoteID, &kind, &dirty, &dirtySource,
		&conflicting, &changeType, &file.LocalMTime, &file.RemoteMTime, &file.RemoteVersion, &deletedRemote)
	if err != nil {
		return TrackedFile{}, err
	}
	file.Kind = types.TrackerKind(kind)
	file.Dirty = dirty != 0
	file.DirtySource = types.SyncDirection(dirtySource)
	file.Conflicting = conflicting != 0
	file.ChangeType = types.FileChangeType(changeType)
	file.DeletedRemote = deletedRemote != 0
	return file, nil
}

func prefixedTrackedColumns(alias string) string {
	return alias + `.app_id, ` + alias + `.relative_path, ` + alias + `.remote_id, ` + alias + `.kind, ` +
		alias + `.dirty, ` + alias + `.dirty_source, ` + alias + `.conflicting, ` + alias + `.change_type, ` +
		alias + `.local_mtime, ` + alias + `.remote_mtime, ` + alias + `.remote_version, ` + alias + `.deleted_remote`
}
