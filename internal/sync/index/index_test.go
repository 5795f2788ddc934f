package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dl-alexandre/gsyncd/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestRoots_CreateGetDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	root := SyncRoot{AppID: "app-a", Label: "App A", Enabled: true, RemoteRootID: "remote-1", ConflictPolicy: "last-writer-wins"}
	if err := db.CreateRoot(ctx, root); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	// Idempotent: re-creating is a no-op
	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "changed"}); err != nil {
		t.Fatalf("CreateRoot (again): %v", err)
	}

	got, err := db.GetRoot(ctx, "app-a")
	if err != nil {
		t.Fatalf("GetRoot: %v", err)
	}
	if got.Label != "App A" {
		t.Errorf("Label = %q, want original preserved", got.Label)
	}
	if !got.Enabled {
		t.Error("root should be enabled")
	}

	apps, err := db.ListRegisteredApps(ctx)
	if err != nil {
		t.Fatalf("ListRegisteredApps: %v", err)
	}
	if len(apps) != 1 || apps[0] != "app-a" {
		t.Errorf("apps = %v", apps)
	}

	if err := db.DeleteRoot(ctx, "app-a"); err != nil {
		t.Fatalf("DeleteRoot: %v", err)
	}
	if _, err := db.GetRoot(ctx, "app-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRoot after delete: err = %v, want ErrNotFound", err)
	}
}

func TestRoots_EnableDisable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	if err := db.SetAppEnabled(ctx, "app-a", false); err != nil {
		t.Fatalf("SetAppEnabled: %v", err)
	}
	enabled, err := db.IsAppEnabled(ctx, "app-a")
	if err != nil {
		t.Fatalf("IsAppEnabled: %v", err)
	}
	if enabled {
		t.Error("expected disabled")
	}

	if err := db.SetAppEnabled(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetAppEnabled(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := db.IsAppEnabled(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IsAppEnabled(missing) err = %v, want ErrNotFound", err)
	}
}

func TestTrackedFiles_DirtyLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	file := TrackedFile{
		AppID:        "app-a",
		RelativePath: "doc.txt",
		Kind:         types.KindRegular,
		Dirty:        true,
		DirtySource:  types.DirectionLocalToRemote,
		ChangeType:   types.ChangeCreated,
		LocalMTime:   100,
	}
	if err := db.Upsert(ctx, file); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := db.CountDirty(ctx)
	if err != nil {
		t.Fatalf("CountDirty: %v", err)
	}
	if count != 1 {
		t.Errorf("CountDirty = %d, want 1", count)
	}

	has, err := db.HasDirty(ctx)
	if err != nil || !has {
		t.Errorf("HasDirty = %v, %v", has, err)
	}

	dirty, err := db.ListDirty(ctx, types.DirectionLocalToRemote, 0)
	if err != nil {
		t.Fatalf("ListDirty: %v", err)
	}
	if len(dirty) != 1 || dirty[0].RelativePath != "doc.txt" {
		t.Errorf("dirty = %+v", dirty)
	}

	// No remote-to-local entries pending
	remoteDirty, err := db.ListDirty(ctx, types.DirectionRemoteToLocal, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(remoteDirty) != 0 {
		t.Errorf("remoteDirty = %+v, want empty", remoteDirty)
	}

	if err := db.MarkClean(ctx, "app-a", "doc.txt"); err != nil {
		t.Fatalf("MarkClean: %v", err)
	}
	count, _ = db.CountDirty(ctx)
	if count != 0 {
		t.Errorf("CountDirty after MarkClean = %d", count)
	}
}

func TestTrackedFiles_DisabledRootsSkipped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: false}); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, TrackedFile{
		AppID: "app-a", RelativePath: "doc.txt", Kind: types.KindRegular,
		Dirty: true, DirtySource: types.DirectionLocalToRemote,
	}); err != nil {
		t.Fatal(err)
	}

	dirty, err := db.ListDirty(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirty) != 0 {
		t.Errorf("drain listing should skip disabled roots, got %+v", dirty)
	}

	// The raw count still reflects the pending change
	count, _ := db.CountDirty(ctx)
	if count != 1 {
		t.Errorf("CountDirty = %d, want 1", count)
	}
}

func TestTrackedFiles_PointLookups(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	appRoot := TrackedFile{AppID: "app-a", RelativePath: "", Kind: types.KindAppRoot, RemoteID: "remote-root"}
	regular := TrackedFile{AppID: "app-a", RelativePath: "doc.txt", Kind: types.KindRegular, RemoteID: "remote-doc"}
	for _, f := range []TrackedFile{appRoot, regular} {
		if err := db.Upsert(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	byPath, err := db.GetByPath(ctx, "app-a", "doc.txt")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if byPath.RemoteID != "remote-doc" {
		t.Errorf("RemoteID = %q", byPath.RemoteID)
	}

	byRemote, err := db.GetByRemoteID(ctx, "remote-doc")
	if err != nil {
		t.Fatalf("GetByRemoteID: %v", err)
	}
	if byRemote.RelativePath != "doc.txt" {
		t.Errorf("RelativePath = %q", byRemote.RelativePath)
	}

	root, err := db.FindAppRoot(ctx, "app-a")
	if err != nil {
		t.Fatalf("FindAppRoot: %v", err)
	}
	if root.Kind != types.KindAppRoot || root.RemoteID != "remote-root" {
		t.Errorf("app root = %+v", root)
	}

	if _, err := db.FindAppRoot(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindAppRoot(missing) err = %v", err)
	}
}

func TestConflicting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, TrackedFile{
		AppID: "app-a", RelativePath: "doc.txt", Kind: types.KindRegular,
		Conflicting: true, LocalMTime: 100, RemoteMTime: 200,
	}); err != nil {
		t.Fatal(err)
	}

	conflicts, err := db.ListConflicting(ctx)
	if err != nil {
		t.Fatalf("ListConflicting: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if conflicts[0].RemoteMTime != 200 {
		t.Errorf("RemoteMTime = %d", conflicts[0].RemoteMTime)
	}
}

func TestDumpAndReset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoot(ctx, SyncRoot{AppID: "app-a", Label: "A", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, TrackedFile{AppID: "app-a", RelativePath: "doc.txt", Kind: types.KindRegular}); err != nil {
		t.Fatal(err)
	}

	snapshot, err := db.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(snapshot.Roots) != 1 || len(snapshot.Files) != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}

	if err := db.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snapshot, err = db.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump after Reset: %v", err)
	}
	if len(snapshot.Roots) != 0 || len(snapshot.Files) != 0 {
		t.Errorf("snapshot after reset = %+v", snapshot)
	}
}
