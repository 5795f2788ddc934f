// Package testing provides shared test doubles for the sync engine,
// most importantly an in-memory remote backend.
package testing

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// FolderMimeType mirrors the Drive folder marker
const FolderMimeType = "application/vnd.google-apps.folder"

// FakeRemote is an in-memory remote.Service. Each method has a Func
// override field; without one, a stateful default applies against the
// in-memory object store. The change feed is test-driven: use
// PushChange to simulate remote-side edits.
type FakeRemote struct {
	mu       sync.Mutex
	objects  map[string]*types.RemoteObject
	contents map[string][]byte
	changes  []types.RemoteChange
	nextID   int
	calls    []string

	CreateFolderFunc      func(name, parentID string) (*types.RemoteObject, error)
	CreateObjectFunc      func(name, parentID string, content io.Reader) (*types.RemoteObject, error)
	UpdateObjectFunc      func(id string, content io.Reader) (*types.RemoteObject, error)
	DeleteObjectFunc      func(id string) error
	DownloadFunc          func(id string) (io.ReadCloser, error)
	GetStartPageTokenFunc func() (string, error)
	ListChangesFunc       func(pageToken string, pageSize int64) (*types.ChangePage, error)
	WatchChangesFunc      func(pageToken, webhookURL string) (*types.NotificationChannel, error)
}

// NewFakeRemote creates an empty in-memory backend
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		objects:  make(map[string]*types.RemoteObject),
		contents: make(map[string][]byte),
	}
}

// Calls returns the method names invoked so far, in order
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Object returns the stored object with the given id, or nil
func (f *FakeRemote) Object(id string) *types.RemoteObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[id]
}

// Content returns the stored content for an object id
func (f *FakeRemote) Content(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.contents[id]...)
}

// SeedObject places an object (and optional content) directly into
// the store without recording a call.
func (f *FakeRemote) SeedObject(obj types.RemoteObject, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := obj
	f.objects[obj.ID] = &stored
	if content != nil {
		f.contents[obj.ID] = append([]byte(nil), content...)
	}
}

// PushChange appends a record to the change feed
func (f *FakeRemote) PushChange(change types.RemoteChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
}

func (f *FakeRemote) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *FakeRemote) allocate(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeRemote) CreateFolder(ctx context.Context, name, parentID string) (*types.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateFolder")
	if f.CreateFolderFunc != nil {
		return f.CreateFolderFunc(name, parentID)
	}
	obj := &types.RemoteObject{
		ID:           f.allocate("folder"),
		Name:         name,
		ParentID:     parentID,
		MimeType:     FolderMimeType,
		ModifiedTime: time.Now(),
	}
	f.objects[obj.ID] = obj
	return obj, nil
}

func (f *FakeRemote) CreateObject(ctx context.Context, name, parentID string, content io.Reader) (*types.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateObject")
	if f.CreateObjectFunc != nil {
		return f.CreateObjectFunc(name, parentID, content)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	obj := &types.RemoteObject{
		ID:           f.allocate("file"),
		Name:         name,
		ParentID:     parentID,
		MimeType:     "application/octet-stream",
		MD5Checksum:  checksum(data),
		Size:         int64(len(data)),
		ModifiedTime: time.Now(),
	}
	f.objects[obj.ID] = obj
	f.contents[obj.ID] = data
	return obj, nil
}

func (f *FakeRemote) UpdateObject(ctx context.Context, id string, content io.Reader) (*types.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateObject")
	if f.UpdateObjectFunc != nil {
		return f.UpdateObjectFunc(id, content)
	}
	obj, ok := f.objects[id]
	if !ok {
		return nil, notFound(id)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.contents[id] = data
	obj.MD5Checksum = checksum(data)
	obj.Size = int64(len(data))
	obj.ModifiedTime = time.Now()
	return obj, nil
}

func (f *FakeRemote) DeleteObject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject")
	if f.DeleteObjectFunc != nil {
		return f.DeleteObjectFunc(id)
	}
	if _, ok := f.objects[id]; !ok {
		return notFound(id)
	}
	delete(f.objects, id)
	delete(f.contents, id)
	// Cascade to descendants, like a real folder delete
	for childID, child := range f.objects {
		if child.ParentID == id {
			delete(f.objects, childID)
			delete(f.contents, childID)
		}
	}
	return nil
}

func (f *FakeRemote) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Download")
	if f.DownloadFunc != nil {
		return f.DownloadFunc(id)
	}
	data, ok := f.contents[id]
	if !ok {
		return nil, notFound(id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FakeRemote) GetStartPageToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetStartPageToken")
	if f.GetStartPageTokenFunc != nil {
		return f.GetStartPageTokenFunc()
	}
	return strconv.Itoa(len(f.changes)), nil
}

func (f *FakeRemote) ListChanges(ctx context.Context, pageToken string, pageSize int64) (*types.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListChanges")
	if f.ListChangesFunc != nil {
		return f.ListChangesFunc(pageToken, pageSize)
	}
	from, err := strconv.Atoi(pageToken)
	if err != nil || from < 0 || from > len(f.changes) {
		return nil, utils.NewSyncError(utils.CodeInvalidArgument, "bad page token").Build()
	}
	to := len(f.changes)
	if pageSize > 0 && from+int(pageSize) < to {
		to = from + int(pageSize)
	}
	page := &types.ChangePage{
		Changes: append([]types.RemoteChange(nil), f.changes[from:to]...),
	}
	if to < len(f.changes) {
		page.NextPageToken = strconv.Itoa(to)
	} else {
		page.NewStartPageToken = strconv.Itoa(to)
	}
	return page, nil
}

func (f *FakeRemote) WatchChanges(ctx context.Context, pageToken, webhookURL string) (*types.NotificationChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WatchChanges")
	if f.WatchChangesFunc != nil {
		return f.WatchChangesFunc(pageToken, webhookURL)
	}
	return &types.NotificationChannel{
		ID:         f.allocate("channel"),
		ResourceID: "fake-resource",
		Expiration: time.Now().Add(time.Hour).UnixMilli(),
	}, nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

func notFound(id string) error {
	return utils.NewSyncError(utils.CodeNotFound, "object not found").
		WithContext("id", id).
		Build()
}
