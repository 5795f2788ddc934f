// Package task contains the units of work the scheduler executes:
// the two one-shot syncers, the remote change fetch, the conflict
// pass and the root lifecycle operations. Tasks return stable status
// codes; the coordinator maps those to state transitions.
package task

import (
	"path/filepath"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/remote"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/types"
)

// Deps is the shared dependency set injected into every task
type Deps struct {
	Index  *index.DB
	Remote remote.Service
	Logger logging.Logger

	// LocalRoot is the directory that holds one subdirectory per
	// registered application.
	LocalRoot string

	// DefaultConflictPolicy applies to roots without an override
	DefaultConflictPolicy string

	// FetchPageSize bounds one remote change listing
	FetchPageSize int64

	// NotifyFileStatus fans a completed per-file sync out to
	// observers. May be nil.
	NotifyFileStatus func(types.FileStatus)
}

func (d Deps) localPath(appID, relPath string) string {
	return filepath.Join(d.LocalRoot, appID, filepath.FromSlash(relPath))
}

func (d Deps) notify(status types.FileStatus) {
	if d.NotifyFileStatus != nil {
		d.NotifyFileStatus(status)
	}
}

func (d Deps) logger() logging.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.NewNoOpLogger()
}
