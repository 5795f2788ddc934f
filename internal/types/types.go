package types

import "time"

// ServiceState classifies the coordinator's current availability.
// It is never persisted; it is recomputed from auth/network signals
// at process start.
type ServiceState int

const (
	StateDisabled ServiceState = iota
	StateTemporaryUnavailable
	StateAuthenticationRequired
	StateOk
)

func (s ServiceState) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateTemporaryUnavailable:
		return "TemporaryUnavailable"
	case StateAuthenticationRequired:
		return "AuthenticationRequired"
	case StateOk:
		return "Ok"
	default:
		return "Unknown"
	}
}

// SyncDirection identifies which pipeline applied a change
type SyncDirection string

const (
	DirectionLocalToRemote SyncDirection = "local_to_remote"
	DirectionRemoteToLocal SyncDirection = "remote_to_local"
)

// SyncAction is the outcome tag reported by a syncer task
type SyncAction string

const (
	ActionNone    SyncAction = "none"
	ActionCreated SyncAction = "created"
	ActionUpdated SyncAction = "updated"
	ActionDeleted SyncAction = "deleted"
)

// FileChangeType describes a local file-system change
type FileChangeType string

const (
	ChangeCreated  FileChangeType = "created"
	ChangeModified FileChangeType = "modified"
	ChangeDeleted  FileChangeType = "deleted"
)

// FileChange is the change descriptor handed to the local-to-remote
// syncer together with a content snapshot.
type FileChange struct {
	Type  FileChangeType
	MTime time.Time
}

// TrackerKind distinguishes the roles a tracked file can play
type TrackerKind string

const (
	KindRegular TrackerKind = "regular"
	KindAppRoot TrackerKind = "app_root"
)

// FileStatus is fanned out to file-status observers after a syncer
// applies a change.
type FileStatus struct {
	AppID     string
	Path      string
	Action    SyncAction
	Direction SyncDirection
	Synced    bool
}

// RemoteObject is the converted shape of one remote storage object
type RemoteObject struct {
	ID           string
	Name         string
	ParentID     string
	MimeType     string
	MD5Checksum  string
	Size         int64
	ModifiedTime time.Time
	Trashed      bool
}

// RemoteChange associates a remote identity with an action observed
// through the change-listing API.
type RemoteChange struct {
	RemoteID string
	Removed  bool
	Object   *RemoteObject
	Time     time.Time
}

// ChangePage is one page of remote change records
type ChangePage struct {
	Changes           []RemoteChange
	NextPageToken     string
	NewStartPageToken string
}

// NotificationChannel describes a push-notification subscription on
// the remote change feed.
type NotificationChannel struct {
	ID         string
	ResourceID string
	Expiration int64
}

// OriginStatus is the per-application entry of the origin status map
type OriginStatus string

const (
	OriginEnabled  OriginStatus = "Enabled"
	OriginDisabled OriginStatus = "Disabled"
)

// OutputFormat selects the CLI output encoding
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds flags shared by every CLI command
type GlobalFlags struct {
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	ConfigPath   string
}
