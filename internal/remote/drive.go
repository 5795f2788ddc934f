package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/google/uuid"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// MimeTypeFolder is the Drive folder MIME type
const MimeTypeFolder = "application/vnd.google-apps.folder"

const changeFields = "nextPageToken,newStartPageToken,changes(fileId,removed,time,file(id,name,mimeType,size,modifiedTime,md5Checksum,parents,trashed))"

// DriveBackend adapts the Google Drive v3 API to the Service
// interface, with retry and error classification applied to every
// call.
type DriveBackend struct {
	service *drive.Service
	policy  RetryPolicy
	logger  logging.Logger
}

// NewDriveBackend creates a Drive-backed remote service
func NewDriveBackend(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *DriveBackend {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &DriveBackend{
		service: service,
		policy: RetryPolicy{
			MaxRetries: maxRetries,
			BaseDelay:  time.Duration(retryDelayMs) * time.Millisecond,
		},
		logger: logger,
	}
}

func (b *DriveBackend) CreateFolder(ctx context.Context, name, parentID string) (*types.RemoteObject, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: MimeTypeFolder,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	call := b.service.Files.Create(meta).Fields(objectFields()).Context(ctx)
	created, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.File, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertObject(created), nil
}

func (b *DriveBackend) CreateObject(ctx context.Context, name, parentID string, content io.Reader) (*types.RemoteObject, error) {
	meta := &drive.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	call := b.service.Files.Create(meta).Fields(objectFields()).Context(ctx)
	if content != nil {
		call = call.Media(content)
	}
	created, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.File, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertObject(created), nil
}

func (b *DriveBackend) UpdateObject(ctx context.Context, id string, content io.Reader) (*types.RemoteObject, error) {
	call := b.service.Files.Update(id, &drive.File{}).Fields(objectFields()).Context(ctx)
	if content != nil {
		call = call.Media(content)
	}
	updated, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.File, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertObject(updated), nil
}

func (b *DriveBackend) DeleteObject(ctx context.Context, id string) error {
	_, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*struct{}, error) {
		err := b.service.Files.Delete(id).Context(ctx).Do()
		return &struct{}{}, err
	})
	return err
}

func (b *DriveBackend) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*http.Response, error) {
		return b.service.Files.Get(id).Context(ctx).Download()
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (b *DriveBackend) GetStartPageToken(ctx context.Context) (string, error) {
	call := b.service.Changes.GetStartPageToken().Context(ctx)
	token, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.StartPageToken, error) {
		return call.Do()
	})
	if err != nil {
		return "", err
	}
	return token.StartPageToken, nil
}

func (b *DriveBackend) ListChanges(ctx context.Context, pageToken string, pageSize int64) (*types.ChangePage, error) {
	call := b.service.Changes.List(pageToken).
		IncludeRemoved(true).
		Fields(googleapi.Field(changeFields)).
		Context(ctx)
	if pageSize > 0 {
		call = call.PageSize(pageSize)
	}

	result, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.ChangeList, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertChangePage(result), nil
}

func (b *DriveBackend) WatchChanges(ctx context.Context, pageToken, webhookURL string) (*types.NotificationChannel, error) {
	channel := &drive.Channel{
		Id:      fmt.Sprintf("gsyncd-changes-%d", time.Now().UnixNano()),
		Type:    "web_hook",
		Address: webhookURL,
	}

	call := b.service.Changes.Watch(pageToken, channel).Context(ctx)
	result, err := ExecuteWithRetry(ctx, b.policy, newTraceID(), b.logger, func() (*drive.Channel, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return &types.NotificationChannel{
		ID:         result.Id,
		ResourceID: result.ResourceId,
		Expiration: result.Expiration,
	}, nil
}

func objectFields() googleapi.Field {
	return "id,name,mimeType,size,modifiedTime,md5Checksum,parents,trashed"
}

func newTraceID() string {
	return uuid.New().String()
}

func convertObject(f *drive.File) *types.RemoteObject {
	obj := &types.RemoteObject{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		MD5Checksum: f.Md5Checksum,
		Size:        f.Size,
		Trashed:     f.Trashed,
	}
	if len(f.Parents) > 0 {
		obj.ParentID = f.Parents[0]
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			obj.ModifiedTime = t
		}
	}
	return obj
}

func convertChangePage(list *drive.ChangeList) *types.ChangePage {
	page := &types.ChangePage{
		NextPageToken:     list.NextPageToken,
		NewStartPageToken: list.NewStartPageToken,
	}
	for _, c := range list.Changes {
		change := types.RemoteChange{
			RemoteID: c.FileId,
			Removed:  c.Removed,
		}
		if c.Time != "" {
			if t, err := time.Parse(time.RFC3339, c.Time); err == nil {
				change.Time = t
			}
		}
		if c.File != nil {
			change.Object = convertObject(c.File)
			// Trashed files behave like removals for sync purposes
			if c.File.Trashed {
				change.Removed = true
			}
		}
		page.Changes = append(page.Changes, change)
	}
	return page
}
