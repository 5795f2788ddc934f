package index

import (
	"context"
	"database/sql"
	"errors"
)

func (d *DB) CreateRoot(ctx context.Context, root SyncRoot) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_roots (app_id, label, enabled, remote_root_id, conflict_policy, page_token)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id) DO NOTHING
	`, root.AppID, root.Label, boolToInt(root.Enabled), root.RemoteRootID, root.ConflictPolicy, root.PageToken)
	return wrapDBErr(err)
}

func (d *DB) GetRoot(ctx context.Context, appID string) (*SyncRoot, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT app_id, label, enabled, remote_root_id, conflict_policy, page_token
		FROM sync_roots WHERE app_id = ?
	`, appID)
	root, err := scanRoot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapDBErr(err)
	}
	return &root, nil
}

func (d *DB) DeleteRoot(ctx context.Context, appID string) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBErr(err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM tracked_files WHERE app_id = ?`, appID); err != nil {
		_ = tx.Rollback()
		return wrapDBErr(err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sync_roots WHERE app_id = ?`, appID); err != nil {
		_ = tx.Rollback()
		return wrapDBErr(err)
	}
	return wrapDBErr(tx.Commit())
}

func (d *DB) ListRegisteredApps(ctx context.Context) (apps []string, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT app_id FROM sync_roots ORDER BY app_id`)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = wrapDBErr(closeErr)
		}
	}()

	for rows.Next() {
		var appID string
		if err := rows.Scan(&appID); err != nil {
			return nil, wrapDBErr(err)
		}
		apps = append(apps, appID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(err)
	}
	return apps, nil
}

func (d *DB) IsAppEnabled(ctx context.Context, appID string) (bool, error) {
	row := d.db.QueryRowContext(ctx, `SELECT enabled FROM sync_roots WHERE app_id = ?`, appID)
	var enabled int
	if err := row.Scan(&enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, wrapDBErr(err)
	}
	return enabled != 0, nil
}

func (d *DB) SetAppEnabled(ctx context.Context, appID string, enabled bool) error {
	result, err := d.db.ExecContext(ctx, `UPDATE sync_roots SET enabled = ? WHERE app_id = ?`, boolToInt(enabled), appID)
	if err != nil {
		return wrapDBErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBErr(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) SetConflictPolicy(ctx context.Context, appID, policy string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE sync_roots SET conflict_policy = ? WHERE app_id = ?`, policy, appID)
	if err != nil {
		return wrapDBErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBErr(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) SetRemoteRootID(ctx context.Context, appID, remoteID string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE sync_roots SET remote_root_id = ? WHERE app_id = ?`, remoteID, appID)
	return wrapDBErr(err)
}

func (d *DB) SetPageToken(ctx context.Context, appID, token string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE sync_roots SET page_token = ? WHERE app_id = ?`, token, appID)
	return wrapDBErr(err)
}

func scanRoot(scanner interface {
	Scan(dest ...interface{}) error
}) (SyncRoot, error) {
	var root SyncRoot
	var enabled int
	err := scanner.Scan(&root.AppID, &root.Label, &enabled, &root.RemoteRootID, &root.ConflictPolicy, &root.PageToken)
	if err != nil {
		return SyncRoot{}, err
	}
	root.Enabled = enabled != 0
	return root, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
