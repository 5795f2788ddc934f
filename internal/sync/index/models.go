package index

import "github.com/dl-alexandre/gsyncd/internal/types"

// SyncRoot identifies one application's synchronized namespace
type SyncRoot struct {
	AppID          string
	Label          string
	Enabled        bool
	RemoteRootID   string
	ConflictPolicy string
	PageToken      string
}

// TrackedFile is the unit of synchronization state for one
// local/remote path pair. A dirty tracked file IS the pending change;
// there is no separate queue entity.
type TrackedFile struct {
	AppID        string
	RelativePath string
	RemoteID     string
	Kind         types.TrackerKind

	// Dirty marks a pending, unapplied change. DirtySource records
	// which pipeline must drain it.
	Dirty       bool
	DirtySource types.SyncDirection

	// Conflicting is set when local and remote both changed since the
	// last common version.
	Conflicting bool

	ChangeType    types.FileChangeType
	LocalMTime    int64
	RemoteMTime   int64
	RemoteVersion string
	DeletedRemote bool
}

// Snapshot is the debug dump of the whole index
type Snapshot struct {
	Roots []SyncRoot    `json:"roots"`
	Files []TrackedFile `json:"files"`
}
