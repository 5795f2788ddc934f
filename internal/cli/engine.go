package cli

import (
	"context"
	"path/filepath"

	"github.com/dl-alexandre/gsyncd/internal/registry"
	"github.com/dl-alexandre/gsyncd/internal/remote"
	gsync "github.com/dl-alexandre/gsyncd/internal/sync"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// openIndex opens the metadata index configured for this profile
func openIndex() (*index.DB, error) {
	return index.Open(cfg.IndexPath)
}

// buildEngine constructs a started Coordinator against the Drive
// backend. The returned cleanup drains the scheduler and closes the
// index.
func buildEngine(ctx context.Context) (*gsync.Coordinator, func(), error) {
	db, err := openIndex()
	if err != nil {
		return nil, nil, err
	}

	store := remote.NewTokenStore(filepath.Dir(cfg.IndexPath))
	service, err := remote.NewDriveService(ctx, store, "default")
	if err != nil {
		_ = db.Close()
		return nil, nil, utils.NewSyncError(utils.CodeAuthRequired, "no usable credentials; authenticate first").
			Build()
	}
	backend := remote.NewDriveBackend(service, cfg.MaxRetries, cfg.RetryBaseDelay, logger)

	coordinator := gsync.New(gsync.Options{
		Config:   cfg,
		Index:    db,
		Remote:   backend,
		Registry: registry.PermissiveRegistry{},
		Logger:   logger,
	})
	if err := coordinator.Start(ctx); err != nil {
		coordinator.Close()
		_ = db.Close()
		return nil, nil, err
	}
	coordinator.NotifyCredentialsReady()

	cleanup := func() {
		coordinator.Close()
		_ = db.Close()
	}
	return coordinator, cleanup, nil
}

// awaitCode runs an async coordinator operation to completion
func awaitCode(fn func(cb scheduler.Callback)) utils.Code {
	ch := make(chan utils.Code, 1)
	fn(func(code utils.Code) { ch <- code })
	return <-ch
}

// awaitRemoteChange runs one fetch round to completion
func awaitRemoteChange(c *gsync.Coordinator) gsync.RemoteChangeResult {
	ch := make(chan gsync.RemoteChangeResult, 1)
	c.ProcessRemoteChange(func(r gsync.RemoteChangeResult) { ch <- r })
	return <-ch
}

// codeErr converts a non-success status into a CLI error
func codeErr(code utils.Code, message string) error {
	if code.IsSuccess() {
		return nil
	}
	return utils.NewSyncError(code, message).Build()
}
