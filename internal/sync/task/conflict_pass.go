package task

import (
	"context"
	"os"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/sync/conflict"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// NewConflictPass returns the idle-priority task that resolves
// conflicting entries. It requires quiescence: any pending change
// aborts the pass, since resolution must see the settled state of
// both sides.
func NewConflictPass(deps Deps) scheduler.Task {
	return scheduler.NewTask("conflict-pass", func(ctx context.Context) utils.Code {
		pending, err := deps.Index.CountDirty(ctx)
		if err != nil {
			return utils.CodeOf(err)
		}
		if pending > 0 {
			return utils.CodeNoChange
		}

		conflicts, err := deps.Index.ListConflicting(ctx)
		if err != nil {
			return utils.CodeOf(err)
		}
		if len(conflicts) == 0 {
			return utils.CodeNoChange
		}

		for _, file := range conflicts {
			if err := resolveOne(ctx, deps, file); err != nil {
				return utils.CodeOf(err)
			}
		}
		return utils.CodeOK
	})
}

// resolveOne marks the winning direction dirty; the syncers propagate
// on the next drain.
func resolveOne(ctx context.Context, deps Deps, file index.TrackedFile) error {
	root, err := deps.Index.GetRoot(ctx, file.AppID)
	if err != nil {
		return err
	}
	policy := conflict.Effective(root.ConflictPolicy, deps.DefaultConflictPolicy)
	resolution, err := conflict.Resolve(file, policy)
	if err != nil {
		return err
	}

	deps.logger().Info("conflict resolved",
		logging.F("app_id", file.AppID),
		logging.F("path", file.RelativePath),
		logging.F("policy", policy),
		logging.F("winner", string(resolution.Direction)),
	)

	if resolution.RenameLocalTo != "" {
		if err := keepLocalAside(ctx, deps, file, resolution.RenameLocalTo); err != nil {
			return err
		}
	}

	file.Conflicting = false
	file.Dirty = true
	file.DirtySource = resolution.Direction
	switch resolution.Direction {
	case types.DirectionLocalToRemote:
		if file.DeletedRemote {
			// Remote copy is gone; the winning local copy re-creates it
			file.RemoteID = ""
			file.DeletedRemote = false
			file.ChangeType = types.ChangeCreated
		} else {
			file.ChangeType = types.ChangeModified
		}
	case types.DirectionRemoteToLocal:
		if file.DeletedRemote {
			file.ChangeType = types.ChangeDeleted
		} else {
			file.ChangeType = types.ChangeModified
		}
	}
	return deps.Index.Upsert(ctx, file)
}

// keepLocalAside moves the losing local copy to its conflicted-copy
// path and tracks it as a fresh local creation.
func keepLocalAside(ctx context.Context, deps Deps, file index.TrackedFile, asidePath string) error {
	src := deps.localPath(file.AppID, file.RelativePath)
	dst := deps.localPath(file.AppID, asidePath)
	if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
		return utils.NewSyncError(utils.CodeFailed, "cannot set local copy aside").
			WithContext("path", file.RelativePath).
			Build()
	}
	return deps.Index.Upsert(ctx, index.TrackedFile{
		AppID:        file.AppID,
		RelativePath: asidePath,
		Kind:         types.KindRegular,
		Dirty:        true,
		DirtySource:  types.DirectionLocalToRemote,
		ChangeType:   types.ChangeCreated,
		LocalMTime:   file.LocalMTime,
	})
}
