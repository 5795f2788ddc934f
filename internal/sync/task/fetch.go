package task

import (
	"context"
	"errors"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/remote"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// NewFetch returns a task that pulls one page of remote change
// records for one application and merges them into the index. The
// first run only establishes the change cursor. Mutual exclusion with
// other fetches is the coordinator's responsibility.
func NewFetch(deps Deps, appID string) scheduler.Task {
	return scheduler.NewTask("remote-fetch", func(ctx context.Context) utils.Code {
		root, err := deps.Index.GetRoot(ctx, appID)
		if err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return utils.CodeUnknownOrigin
			}
			return utils.CodeOf(err)
		}
		if !root.Enabled {
			return utils.CodeSyncDisabled
		}

		if root.PageToken == "" {
			token, err := deps.Remote.GetStartPageToken(ctx)
			if err != nil {
				return utils.CodeOf(err)
			}
			if err := deps.Index.SetPageToken(ctx, appID, token); err != nil {
				return utils.CodeOf(err)
			}
			return utils.CodeNoChange
		}

		appRoot, err := deps.Index.FindAppRoot(ctx, appID)
		if err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return utils.CodeUnknownOrigin
			}
			return utils.CodeOf(err)
		}

		page, err := deps.Remote.ListChanges(ctx, root.PageToken, deps.FetchPageSize)
		if err != nil {
			return utils.CodeOf(err)
		}

		merged := 0
		for _, change := range page.Changes {
			applied, err := mergeRemoteChange(ctx, deps, appID, appRoot, change)
			if err != nil {
				return utils.CodeOf(err)
			}
			if applied {
				merged++
			}
		}

		next := page.NextPageToken
		if next == "" {
			next = page.NewStartPageToken
		}
		if next != "" && next != root.PageToken {
			if err := deps.Index.SetPageToken(ctx, appID, next); err != nil {
				return utils.CodeOf(err)
			}
		}

		deps.logger().Debug("change page merged",
			logging.F("app_id", appID),
			logging.F("records", len(page.Changes)),
			logging.F("merged", merged),
		)
		if merged == 0 {
			return utils.CodeNoChange
		}
		return utils.CodeOK
	})
}

// NewFetchAll returns a task that fetches one change page for every
// registered application. Disabled roots are skipped; the first
// failure aborts the round so the coordinator can transition.
func NewFetchAll(deps Deps) scheduler.Task {
	return scheduler.NewTask("remote-fetch", func(ctx context.Context) utils.Code {
		apps, err := deps.Index.ListRegisteredApps(ctx)
		if err != nil {
			return utils.CodeOf(err)
		}
		result := utils.CodeNoChange
		for _, appID := range apps {
			code := NewFetch(deps, appID).Run(ctx)
			switch code {
			case utils.CodeOK:
				result = utils.CodeOK
			case utils.CodeNoChange, utils.CodeSyncDisabled:
			default:
				return code
			}
		}
		return result
	})
}

// mergeRemoteChange folds one change record into the index. A change
// that collides with a pending local edit flags the entry conflicting
// instead of overwriting it.
func mergeRemoteChange(ctx context.Context, deps Deps, appID string, appRoot *index.TrackedFile, change types.RemoteChange) (bool, error) {
	entry, err := deps.Index.GetByRemoteID(ctx, change.RemoteID)
	if err != nil && !errors.Is(err, index.ErrNotFound) {
		return false, err
	}
	tracked := err == nil && entry.AppID == appID

	if change.Removed {
		if !tracked {
			return false, nil
		}
		if entry.Kind == types.KindAppRoot {
			deps.logger().Warn("remote root removed", logging.F("app_id", appID))
			return false, nil
		}
		if entry.Dirty && entry.DirtySource == types.DirectionLocalToRemote {
			// Parked: neither drain may touch the entry until the
			// conflict pass picks a winner.
			entry.Conflicting = true
			entry.Dirty = false
			entry.DirtySource = ""
			entry.DeletedRemote = true
			return true, deps.Index.Upsert(ctx, *entry)
		}
		entry.Dirty = true
		entry.DirtySource = types.DirectionRemoteToLocal
		entry.DeletedRemote = true
		entry.ChangeType = types.ChangeDeleted
		return true, deps.Index.Upsert(ctx, *entry)
	}

	obj := change.Object
	if obj == nil {
		return false, nil
	}

	if tracked {
		if entry.Kind == types.KindAppRoot {
			return false, nil
		}
		if entry.RemoteVersion == obj.MD5Checksum && entry.RemoteVersion != "" {
			return false, nil
		}
		entry.RemoteMTime = obj.ModifiedTime.Unix()
		entry.RemoteVersion = obj.MD5Checksum
		if entry.Dirty && entry.DirtySource == types.DirectionLocalToRemote {
			entry.Conflicting = true
			entry.Dirty = false
			entry.DirtySource = ""
			return true, deps.Index.Upsert(ctx, *entry)
		}
		entry.Dirty = true
		entry.DirtySource = types.DirectionRemoteToLocal
		entry.ChangeType = types.ChangeModified
		return true, deps.Index.Upsert(ctx, *entry)
	}

	relPath, ok, err := resolveRemotePath(ctx, deps, appID, appRoot, obj)
	if err != nil || !ok {
		return false, err
	}

	file := index.TrackedFile{
		AppID:         appID,
		RelativePath:  relPath,
		RemoteID:      obj.ID,
		Kind:          types.KindRegular,
		RemoteMTime:   obj.ModifiedTime.Unix(),
		RemoteVersion: obj.MD5Checksum,
	}
	if obj.MimeType != remote.MimeTypeFolder {
		file.Dirty = true
		file.DirtySource = types.DirectionRemoteToLocal
		file.ChangeType = types.ChangeCreated
	}
	return true, deps.Index.Upsert(ctx, file)
}

// resolveRemotePath places a newly-seen remote object inside the app's
// namespace via its parent. Objects outside the tracked tree are
// ignored.
func resolveRemotePath(ctx context.Context, deps Deps, appID string, appRoot *index.TrackedFile, obj *types.RemoteObject) (string, bool, error) {
	if obj.ParentID == appRoot.RemoteID {
		return obj.Name, true, nil
	}
	parent, err := deps.Index.GetByRemoteID(ctx, obj.ParentID)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if parent.AppID != appID {
		return "", false, nil
	}
	return parent.RelativePath + "/" + obj.Name, true, nil
}
