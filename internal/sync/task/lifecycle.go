package task

import (
	"context"
	"errors"
	"os"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/sync/conflict"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// NewRegister returns a task that registers an application for
// synchronization: a sync root row, a remote app folder and the
// tracked app-root entry. Idempotent; a fully-registered app is a
// no-op.
func NewRegister(deps Deps, appID, label string) scheduler.Task {
	return scheduler.NewTask("register", func(ctx context.Context) utils.Code {
		if label == "" {
			label = appID
		}
		if err := deps.Index.CreateRoot(ctx, index.SyncRoot{
			AppID:          appID,
			Label:          label,
			Enabled:        true,
			ConflictPolicy: "",
		}); err != nil {
			return utils.CodeOf(err)
		}

		if _, err := deps.Index.FindAppRoot(ctx, appID); err == nil {
			return utils.CodeOK
		} else if !errors.Is(err, index.ErrNotFound) {
			return utils.CodeOf(err)
		}

		folder, err := deps.Remote.CreateFolder(ctx, label, "")
		if err != nil {
			return utils.CodeOf(err)
		}
		if err := deps.Index.SetRemoteRootID(ctx, appID, folder.ID); err != nil {
			return utils.CodeOf(err)
		}
		if err := deps.Index.Upsert(ctx, index.TrackedFile{
			AppID:        appID,
			RelativePath: "",
			RemoteID:     folder.ID,
			Kind:         types.KindAppRoot,
		}); err != nil {
			return utils.CodeOf(err)
		}

		if err := os.MkdirAll(deps.localPath(appID, ""), 0o755); err != nil {
			return utils.CodeFailed
		}

		deps.logger().Info("application registered",
			logging.F("app_id", appID),
			logging.F("remote_root", folder.ID),
		)
		return utils.CodeOK
	})
}

// NewEnable returns a task that turns synchronization on for one app
func NewEnable(deps Deps, appID string) scheduler.Task {
	return scheduler.NewTask("enable", func(ctx context.Context) utils.Code {
		return setEnabled(ctx, deps, appID, true)
	})
}

// NewDisable returns a task that turns synchronization off for one
// app. Pending changes stay in the index and drain when re-enabled.
func NewDisable(deps Deps, appID string) scheduler.Task {
	return scheduler.NewTask("disable", func(ctx context.Context) utils.Code {
		return setEnabled(ctx, deps, appID, false)
	})
}

func setEnabled(ctx context.Context, deps Deps, appID string, enabled bool) utils.Code {
	if err := deps.Index.SetAppEnabled(ctx, appID, enabled); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return utils.CodeUnknownOrigin
		}
		return utils.CodeOf(err)
	}
	deps.logger().Info("application toggled",
		logging.F("app_id", appID),
		logging.F("enabled", enabled),
	)
	return utils.CodeOK
}

// NewUninstall returns a task that removes an application from the
// engine. With purgeRemote the remote app folder and everything under
// it is deleted first. Idempotent: an unknown app is a no-op.
func NewUninstall(deps Deps, appID string, purgeRemote bool) scheduler.Task {
	return scheduler.NewTask("uninstall", func(ctx context.Context) utils.Code {
		root, err := deps.Index.GetRoot(ctx, appID)
		if err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return utils.CodeOK
			}
			return utils.CodeOf(err)
		}

		if purgeRemote {
			rootID := root.RemoteRootID
			if rootID == "" {
				// Roots registered before the id was persisted on the
				// row fall back to the tracked app-root entry.
				appRoot, err := deps.Index.FindAppRoot(ctx, appID)
				switch {
				case err == nil:
					rootID = appRoot.RemoteID
				case !errors.Is(err, index.ErrNotFound):
					return utils.CodeOf(err)
				}
			}
			if rootID != "" {
				if err := deps.Remote.DeleteObject(ctx, rootID); err != nil {
					if utils.CodeOf(err) != utils.CodeNotFound {
						return utils.CodeOf(err)
					}
				}
			}
		}

		if err := deps.Index.DeleteRoot(ctx, appID); err != nil {
			return utils.CodeOf(err)
		}
		deps.logger().Info("application uninstalled",
			logging.F("app_id", appID),
			logging.F("purged_remote", purgeRemote),
		)
		return utils.CodeOK
	})
}

// NewSetConflictPolicy returns a task that stores a per-root conflict
// policy override. An empty appID changes nothing here; the global
// default lives in configuration.
func NewSetConflictPolicy(deps Deps, appID, policy string) scheduler.Task {
	return scheduler.NewTask("set-conflict-policy", func(ctx context.Context) utils.Code {
		if policy != "" && !conflict.ValidPolicy(policy) {
			return utils.CodeInvalidArgument
		}
		if err := deps.Index.SetConflictPolicy(ctx, appID, policy); err != nil {
			if errors.Is(err, index.ErrNotFound) {
				return utils.CodeUnknownOrigin
			}
			return utils.CodeOf(err)
		}
		return utils.CodeOK
	})
}
