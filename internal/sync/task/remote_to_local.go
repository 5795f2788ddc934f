package task

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// NewDrainRemote returns a task that applies every pending
// remote-originated change to the local tree, oldest first.
func NewDrainRemote(deps Deps) scheduler.Task {
	return scheduler.NewTask("remote-drain", func(ctx context.Context) utils.Code {
		dirty, err := deps.Index.ListDirty(ctx, types.DirectionRemoteToLocal, 0)
		if err != nil {
			return utils.CodeOf(err)
		}
		if len(dirty) == 0 {
			return utils.CodeNoChange
		}
		for _, file := range dirty {
			if _, err := syncRemoteOne(ctx, deps, file); err != nil {
				return utils.CodeOf(err)
			}
		}
		return utils.CodeOK
	})
}

// syncRemoteOne applies one pending remote change locally. Idempotent:
// a clean entry is a no-op. A conflicting entry is skipped; the
// conflict pass owns it.
func syncRemoteOne(ctx context.Context, deps Deps, file index.TrackedFile) (types.SyncAction, error) {
	current, err := deps.Index.GetByPath(ctx, file.AppID, file.RelativePath)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return types.ActionNone, nil
		}
		return types.ActionNone, err
	}
	if !current.Dirty || current.DirtySource != types.DirectionRemoteToLocal || current.Conflicting {
		return types.ActionNone, nil
	}

	var action types.SyncAction
	if current.DeletedRemote {
		action, err = pullDelete(ctx, deps, *current)
	} else {
		action, err = pullContent(ctx, deps, *current)
	}
	if err != nil {
		return types.ActionNone, err
	}

	deps.logger().Info("remote change applied",
		logging.F("app_id", file.AppID),
		logging.F("path", file.RelativePath),
		logging.F("action", string(action)),
	)
	deps.notify(types.FileStatus{
		AppID:     file.AppID,
		Path:      file.RelativePath,
		Action:    action,
		Direction: types.DirectionRemoteToLocal,
		Synced:    true,
	})
	return action, nil
}

func pullDelete(ctx context.Context, deps Deps, file index.TrackedFile) (types.SyncAction, error) {
	if err := os.Remove(deps.localPath(file.AppID, file.RelativePath)); err != nil && !os.IsNotExist(err) {
		return types.ActionNone, utils.NewSyncError(utils.CodeFailed, "cannot remove local file").
			WithContext("path", file.RelativePath).
			Build()
	}
	if err := deps.Index.Delete(ctx, file.AppID, file.RelativePath); err != nil {
		return types.ActionNone, err
	}
	return types.ActionDeleted, nil
}

func pullContent(ctx context.Context, deps Deps, file index.TrackedFile) (types.SyncAction, error) {
	body, err := deps.Remote.Download(ctx, file.RemoteID)
	if err != nil {
		return types.ActionNone, err
	}
	defer func() { _ = body.Close() }()

	target := deps.localPath(file.AppID, file.RelativePath)
	existed := false
	if _, statErr := os.Stat(target); statErr == nil {
		existed = true
	}
	if err := writeAtomic(target, body); err != nil {
		return types.ActionNone, err
	}

	file.Dirty = false
	file.DirtySource = ""
	file.DeletedRemote = false
	file.ChangeType = ""
	file.LocalMTime = file.RemoteMTime
	if err := deps.Index.Upsert(ctx, file); err != nil {
		return types.ActionNone, err
	}
	if existed {
		return types.ActionUpdated, nil
	}
	return types.ActionCreated, nil
}

// writeAtomic downloads into a sibling temp file and renames it over
// the target so readers never observe a partial write.
func writeAtomic(target string, content io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return utils.NewSyncError(utils.CodeFailed, "cannot create local directory").
			WithContext("path", target).
			Build()
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".gsyncd-*")
	if err != nil {
		return utils.NewSyncError(utils.CodeFailed, "cannot create temp file").
			WithContext("path", target).
			Build()
	}
	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return utils.NewSyncError(utils.CodeNetworkError, "download interrupted").
			WithRetryable(true).
			WithContext("path", target).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return utils.NewSyncError(utils.CodeFailed, "cannot finish local write").
			WithContext("path", target).
			Build()
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return utils.NewSyncError(utils.CodeFailed, "cannot replace local file").
			WithContext("path", target).
			Build()
	}
	return nil
}
