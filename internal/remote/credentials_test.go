package remote

import (
	"context"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFileTokenStore_RoundTrip(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	token := &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := store.Save("default", token); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AccessToken != "at" || loaded.RefreshToken != "rt" {
		t.Errorf("loaded = %+v", loaded)
	}

	if err := store.Delete("default"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("default"); err == nil {
		t.Error("token should be gone after delete")
	}
}

func TestNewDriveService_RejectsExpiredToken(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	expired := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(-time.Hour),
	}
	if err := store.Save("default", expired); err != nil {
		t.Fatal(err)
	}

	// A static token source cannot refresh; the expired token must be
	// rejected up front instead of failing every call with 401.
	if _, err := NewDriveService(context.Background(), store, "default"); err == nil {
		t.Error("expired token accepted")
	}
}
