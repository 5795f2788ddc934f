// Package remote defines the boundary to the Drive-like storage
// backend. The sync engine only depends on the Service interface;
// DriveBackend adapts the Google Drive v3 API behind it, and tests
// substitute a fake.
package remote

import (
	"context"
	"io"

	"github.com/dl-alexandre/gsyncd/internal/types"
)

// Service is the remote storage client consumed by sync tasks. All
// calls are blocking and context-aware; retries and error
// classification happen inside the implementation, so callers see a
// *utils.SyncError with a stable status code on failure.
type Service interface {
	// CreateFolder creates a folder object under parentID
	CreateFolder(ctx context.Context, name, parentID string) (*types.RemoteObject, error)

	// CreateObject uploads a new file object under parentID
	CreateObject(ctx context.Context, name, parentID string, content io.Reader) (*types.RemoteObject, error)

	// UpdateObject replaces the content of an existing object
	UpdateObject(ctx context.Context, id string, content io.Reader) (*types.RemoteObject, error)

	// DeleteObject removes an object (and its descendants)
	DeleteObject(ctx context.Context, id string) error

	// Download streams the content of an object
	Download(ctx context.Context, id string) (io.ReadCloser, error)

	// GetStartPageToken returns a cursor for subsequent ListChanges calls
	GetStartPageToken(ctx context.Context) (string, error)

	// ListChanges pulls one page of change records starting at pageToken
	ListChanges(ctx context.Context, pageToken string, pageSize int64) (*types.ChangePage, error)

	// WatchChanges subscribes a webhook to the change feed
	WatchChanges(ctx context.Context, pageToken, webhookURL string) (*types.NotificationChannel, error)
}
