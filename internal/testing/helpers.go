package testing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// NewTestIndex opens a throwaway sqlite index under t.TempDir
func NewTestIndex(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open test index: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// TestObject creates a remote file object for testing
func TestObject(id, name, parentID string) types.RemoteObject {
	return types.RemoteObject{
		ID:           id,
		Name:         name,
		ParentID:     parentID,
		MimeType:     "text/plain",
		MD5Checksum:  "sum-" + id,
		Size:         1024,
		ModifiedTime: time.Unix(1000, 0),
	}
}

// TestFolderObject creates a remote folder object for testing
func TestFolderObject(id, name, parentID string) types.RemoteObject {
	return types.RemoteObject{
		ID:           id,
		Name:         name,
		ParentID:     parentID,
		MimeType:     FolderMimeType,
		ModifiedTime: time.Unix(1000, 0),
	}
}

// ModifiedChange builds a change-feed record for an updated object
func ModifiedChange(obj types.RemoteObject, at time.Time) types.RemoteChange {
	stored := obj
	stored.ModifiedTime = at
	return types.RemoteChange{
		RemoteID: obj.ID,
		Object:   &stored,
		Time:     at,
	}
}

// RemovedChange builds a change-feed record for a deleted object
func RemovedChange(remoteID string, at time.Time) types.RemoteChange {
	return types.RemoteChange{
		RemoteID: remoteID,
		Removed:  true,
		Time:     at,
	}
}
