package task

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// NewLocalSync returns a task that records one local change and
// pushes it to the remote. The change is recorded first, so a
// transient failure leaves a dirty entry for a later drain.
func NewLocalSync(deps Deps, appID, relPath string, change types.FileChange, snapshot io.Reader) scheduler.Task {
	return scheduler.NewTask("local-sync", func(ctx context.Context) utils.Code {
		file, err := recordLocalChange(ctx, deps, appID, relPath, change)
		if err != nil {
			return utils.CodeOf(err)
		}
		if _, err := syncLocalOne(ctx, deps, *file, snapshot); err != nil {
			return utils.CodeOf(err)
		}
		return utils.CodeOK
	})
}

// NewRecordLocalChange returns a task that only records the change in
// the index. Used while the service is unavailable: the entry drains
// once connectivity is restored.
func NewRecordLocalChange(deps Deps, appID, relPath string, change types.FileChange) scheduler.Task {
	return scheduler.NewTask("local-record", func(ctx context.Context) utils.Code {
		if _, err := recordLocalChange(ctx, deps, appID, relPath, change); err != nil {
			return utils.CodeOf(err)
		}
		return utils.CodeOK
	})
}

// NewDrainLocal returns a task that pushes every pending local change
// to the remote, oldest first. Stops at the first transient failure so
// the coordinator can transition before retrying.
func NewDrainLocal(deps Deps) scheduler.Task {
	return scheduler.NewTask("local-drain", func(ctx context.Context) utils.Code {
		dirty, err := deps.Index.ListDirty(ctx, types.DirectionLocalToRemote, 0)
		if err != nil {
			return utils.CodeOf(err)
		}
		if len(dirty) == 0 {
			return utils.CodeNoChange
		}
		for _, file := range dirty {
			if _, err := syncLocalOne(ctx, deps, file, nil); err != nil {
				return utils.CodeOf(err)
			}
		}
		return utils.CodeOK
	})
}

func recordLocalChange(ctx context.Context, deps Deps, appID, relPath string, change types.FileChange) (*index.TrackedFile, error) {
	if _, err := deps.Index.GetRoot(ctx, appID); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, utils.NewSyncError(utils.CodeUnknownOrigin, "application is not registered").
				WithContext("app_id", appID).
				Build()
		}
		return nil, err
	}

	file := index.TrackedFile{
		AppID:        appID,
		RelativePath: relPath,
		Kind:         types.KindRegular,
		ChangeType:   change.Type,
		LocalMTime:   change.MTime.Unix(),
	}
	if existing, err := deps.Index.GetByPath(ctx, appID, relPath); err == nil {
		file.RemoteID = existing.RemoteID
		file.RemoteMTime = existing.RemoteMTime
		file.RemoteVersion = existing.RemoteVersion
		file.Conflicting = existing.Conflicting
	} else if !errors.Is(err, index.ErrNotFound) {
		return nil, err
	}
	// A conflicting entry stays parked for the conflict pass; the
	// updated local mtime still feeds the policy decision.
	if !file.Conflicting {
		file.Dirty = true
		file.DirtySource = types.DirectionLocalToRemote
	}

	if err := deps.Index.Upsert(ctx, file); err != nil {
		return nil, err
	}
	return &file, nil
}

// syncLocalOne applies one pending local change to the remote. A nil
// snapshot reads current content from disk. Idempotent: a clean entry
// is a no-op. A conflicting entry is skipped; the conflict pass owns
// it.
func syncLocalOne(ctx context.Context, deps Deps, file index.TrackedFile, snapshot io.Reader) (types.SyncAction, error) {
	current, err := deps.Index.GetByPath(ctx, file.AppID, file.RelativePath)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return types.ActionNone, nil
		}
		return types.ActionNone, err
	}
	if !current.Dirty || current.DirtySource != types.DirectionLocalToRemote || current.Conflicting {
		return types.ActionNone, nil
	}

	appRoot, err := deps.Index.FindAppRoot(ctx, file.AppID)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return types.ActionNone, utils.NewSyncError(utils.CodeUnknownOrigin, "remote root is not tracked").
				WithContext("app_id", file.AppID).
				Build()
		}
		return types.ActionNone, err
	}

	var action types.SyncAction
	switch current.ChangeType {
	case types.ChangeDeleted:
		action, err = pushDelete(ctx, deps, *current)
	default:
		action, err = pushContent(ctx, deps, *current, appRoot.RemoteID, snapshot)
	}
	if err != nil {
		return types.ActionNone, err
	}

	deps.logger().Info("local change pushed",
		logging.F("app_id", file.AppID),
		logging.F("path", file.RelativePath),
		logging.F("action", string(action)),
	)
	deps.notify(types.FileStatus{
		AppID:     file.AppID,
		Path:      file.RelativePath,
		Action:    action,
		Direction: types.DirectionLocalToRemote,
		Synced:    true,
	})
	return action, nil
}

func pushDelete(ctx context.Context, deps Deps, file index.TrackedFile) (types.SyncAction, error) {
	if file.RemoteID != "" {
		if err := deps.Remote.DeleteObject(ctx, file.RemoteID); err != nil {
			// Already gone remotely is success for a delete
			if utils.CodeOf(err) != utils.CodeNotFound {
				return types.ActionNone, err
			}
		}
	}
	if err := deps.Index.Delete(ctx, file.AppID, file.RelativePath); err != nil {
		return types.ActionNone, err
	}
	return types.ActionDeleted, nil
}

func pushContent(ctx context.Context, deps Deps, file index.TrackedFile, appRootID string, snapshot io.Reader) (types.SyncAction, error) {
	content := snapshot
	if content == nil {
		f, err := os.Open(deps.localPath(file.AppID, file.RelativePath))
		if err != nil {
			return types.ActionNone, utils.NewSyncError(utils.CodeFailed, "local content unreadable").
				WithContext("path", file.RelativePath).
				Build()
		}
		defer func() { _ = f.Close() }()
		content = f
	}

	var action types.SyncAction
	var obj *types.RemoteObject
	var err error
	if file.RemoteID == "" {
		parentID, perr := ensureRemoteDir(ctx, deps, file.AppID, path.Dir(file.RelativePath), appRootID)
		if perr != nil {
			return types.ActionNone, perr
		}
		obj, err = deps.Remote.CreateObject(ctx, path.Base(file.RelativePath), parentID, content)
		action = types.ActionCreated
	} else {
		obj, err = deps.Remote.UpdateObject(ctx, file.RemoteID, content)
		action = types.ActionUpdated
	}
	if err != nil {
		return types.ActionNone, err
	}

	file.RemoteID = obj.ID
	file.RemoteMTime = obj.ModifiedTime.Unix()
	file.RemoteVersion = obj.MD5Checksum
	file.Dirty = false
	file.DirtySource = ""
	file.Conflicting = false
	file.ChangeType = ""
	if err := deps.Index.Upsert(ctx, file); err != nil {
		return types.ActionNone, err
	}
	return action, nil
}

// ensureRemoteDir resolves (creating as needed) the remote folder for
// a relative directory, tracking each created folder.
func ensureRemoteDir(ctx context.Context, deps Deps, appID, dir, appRootID string) (string, error) {
	if dir == "." || dir == "" {
		return appRootID, nil
	}

	parentID := appRootID
	walked := ""
	for _, segment := range strings.Split(dir, "/") {
		if walked == "" {
			walked = segment
		} else {
			walked = walked + "/" + segment
		}

		entry, err := deps.Index.GetByPath(ctx, appID, walked)
		if err == nil && entry.RemoteID != "" {
			parentID = entry.RemoteID
			continue
		}
		if err != nil && !errors.Is(err, index.ErrNotFound) {
			return "", err
		}

		folder, err := deps.Remote.CreateFolder(ctx, segment, parentID)
		if err != nil {
			return "", err
		}
		if err := deps.Index.Upsert(ctx, index.TrackedFile{
			AppID:        appID,
			RelativePath: walked,
			RemoteID:     folder.ID,
			Kind:         types.KindRegular,
		}); err != nil {
			return "", err
		}
		parentID = folder.ID
	}
	return parentID, nil
}
