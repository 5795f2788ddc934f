package sync

import (
	"context"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/config"
	"github.com/dl-alexandre/gsyncd/internal/registry"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	synctest "github.com/dl-alexandre/gsyncd/internal/testing"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *synctest.FakeRemote, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LocalRoot = t.TempDir()
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")

	fake := synctest.NewFakeRemote()
	c := New(Options{
		Config: cfg,
		Index:  synctest.NewTestIndex(t),
		Remote: fake,
	})
	t.Cleanup(c.Close)
	return c, fake, cfg
}

func startOk(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.NotifyCredentialsReady()
	if got := c.ServiceState(); got != types.StateOk {
		t.Fatalf("state after credentials = %v", got)
	}
}

func await(t *testing.T, fn func(cb scheduler.Callback)) utils.Code {
	t.Helper()
	ch := make(chan utils.Code, 1)
	fn(func(code utils.Code) { ch <- code })
	select {
	case code := <-ch:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("callback never delivered")
		return utils.CodeFailed
	}
}

func awaitRemote(t *testing.T, c *Coordinator) RemoteChangeResult {
	t.Helper()
	ch := make(chan RemoteChangeResult, 1)
	c.ProcessRemoteChange(func(r RemoteChangeResult) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("fetch round never completed")
		return RemoteChangeResult{}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStateMachine_Transitions(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := c.ServiceState(); got != types.StateAuthenticationRequired {
		t.Errorf("initial state = %v, want AuthenticationRequired", got)
	}

	c.NotifyCredentialsReady()
	if got := c.ServiceState(); got != types.StateOk {
		t.Errorf("state = %v, want Ok", got)
	}

	c.NotifyNetworkChanged(false)
	if got := c.ServiceState(); got != types.StateTemporaryUnavailable {
		t.Errorf("state = %v, want TemporaryUnavailable", got)
	}

	c.NotifyCredentialsInvalid()
	if got := c.ServiceState(); got != types.StateAuthenticationRequired {
		t.Errorf("auth loss outranks network, state = %v", got)
	}

	c.SetSyncEnabled(false)
	if got := c.ServiceState(); got != types.StateDisabled {
		t.Errorf("state = %v, want Disabled", got)
	}
}

func TestObservers_NotifiedWithReason(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var mu stdsync.Mutex
	var seen []StateChange
	unsubscribe := c.Subscribe(func(state types.ServiceState, reason string) {
		mu.Lock()
		seen = append(seen, StateChange{State: state, Reason: reason})
		mu.Unlock()
	})

	ch, closeCh := c.SubscribeStateChanges(4)
	defer closeCh()

	c.NotifyCredentialsReady()

	mu.Lock()
	if len(seen) != 1 || seen[0].State != types.StateOk || seen[0].Reason == "" {
		t.Errorf("seen = %+v", seen)
	}
	mu.Unlock()

	select {
	case change := <-ch:
		if change.State != types.StateOk {
			t.Errorf("channel change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("channel observer missed the transition")
	}

	unsubscribe()
	c.SetSyncEnabled(false)
	mu.Lock()
	if len(seen) != 1 {
		t.Errorf("unsubscribed observer still notified: %+v", seen)
	}
	mu.Unlock()
}

func TestRegisterRoot(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "App A", cb) }); code != utils.CodeOK {
		t.Fatalf("register = %v", code)
	}

	statuses, err := c.OriginStatusMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if statuses["app-a"] != types.OriginEnabled {
		t.Errorf("origin map = %+v", statuses)
	}

	created := false
	for _, call := range fake.Calls() {
		if call == "CreateFolder" {
			created = true
		}
	}
	if !created {
		t.Error("remote app folder not created")
	}

	// Second registration is the fast path
	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "App A", cb) }); code != utils.CodeOK {
		t.Errorf("re-register = %v", code)
	}
}

func TestRegisterRoot_FastPathSkipsQueue(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "App A", cb) }); code != utils.CodeOK {
		t.Fatal(code)
	}

	// Occupy the single worker; a re-register must still complete
	release := make(chan struct{})
	c.sched.Schedule(scheduler.NewTask("hold", func(ctx context.Context) utils.Code {
		<-release
		return utils.CodeOK
	}), scheduler.PriorityMedium, nil)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "", cb) }); code != utils.CodeOK {
		t.Errorf("fast-path register = %v", code)
	}
	close(release)

	folders := 0
	for _, call := range fake.Calls() {
		if call == "CreateFolder" {
			folders++
		}
	}
	if folders != 1 {
		t.Errorf("CreateFolder calls = %d, want 1", folders)
	}
}

func TestFatalIndexFailureDisablesService(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	startOk(t, c)

	var mu stdsync.Mutex
	var seen []StateChange
	c.Subscribe(func(state types.ServiceState, reason string) {
		mu.Lock()
		seen = append(seen, StateChange{State: state, Reason: reason})
		mu.Unlock()
	})

	code := await(t, func(cb scheduler.Callback) {
		c.sched.Schedule(scheduler.NewTask("index-write", func(context.Context) utils.Code {
			return utils.CodeIndexCorrupt
		}), scheduler.PriorityMedium, cb)
	})
	if code != utils.CodeIndexCorrupt {
		t.Fatalf("task status = %v", code)
	}

	if got := c.ServiceState(); got != types.StateDisabled {
		t.Errorf("state after corruption = %v, want Disabled", got)
	}
	mu.Lock()
	if len(seen) == 0 || seen[len(seen)-1].State != types.StateDisabled {
		t.Errorf("observers saw %+v, want a Disabled transition", seen)
	}
	mu.Unlock()

	// Every operation is rejected until the index is reset
	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeIndexCorrupt {
		t.Errorf("register after corruption = %v", code)
	}

	if err := c.ResetIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.ServiceState(); got != types.StateOk {
		t.Errorf("state after reset = %v, want Ok", got)
	}
}

func TestRequestsDeferredUntilStart(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.NotifyCredentialsReady()

	ch := make(chan utils.Code, 1)
	c.RegisterRoot("app-a", "App A", func(code utils.Code) { ch <- code })

	select {
	case <-ch:
		t.Fatal("request ran before initialization")
	case <-time.After(20 * time.Millisecond):
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-ch:
		if code != utils.CodeOK {
			t.Errorf("deferred register = %v", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deferred request never ran")
	}
}

func TestDisabled_HasNoEffect(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)
	c.SetSyncEnabled(false)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeSyncDisabled {
		t.Errorf("register while disabled = %v", code)
	}
	code := await(t, func(cb scheduler.Callback) {
		c.ApplyLocalChange("app-a", "doc.txt", types.FileChange{Type: types.ChangeCreated, MTime: time.Now()}, nil, cb)
	})
	if code != utils.CodeSyncDisabled {
		t.Errorf("local change while disabled = %v", code)
	}

	count, err := c.db.CountDirty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("disabled engine recorded a change, CountDirty = %d", count)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("disabled engine touched the remote: %v", calls)
	}
}

func TestOfflineChangeDrainsOnRestore(t *testing.T) {
	c, fake, cfg := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeOK {
		t.Fatal(code)
	}

	c.NotifyNetworkChanged(false)
	if got := c.ServiceState(); got != types.StateTemporaryUnavailable {
		t.Fatalf("state = %v", got)
	}

	if err := os.WriteFile(filepath.Join(cfg.LocalRoot, "app-a", "doc.txt"), []byte("offline edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	code := await(t, func(cb scheduler.Callback) {
		c.ApplyLocalChange("app-a", "doc.txt", types.FileChange{Type: types.ChangeCreated, MTime: time.Unix(100, 0)}, nil, cb)
	})
	if code != utils.CodeOK {
		t.Fatalf("record = %v", code)
	}

	count, _ := c.db.CountDirty(context.Background())
	if count != 1 {
		t.Fatalf("CountDirty = %d, want 1 pending", count)
	}
	for _, call := range fake.Calls() {
		if call == "CreateObject" {
			t.Fatal("offline change must not reach the remote yet")
		}
	}

	// Connectivity restored: the entry drains without further calls
	c.NotifyNetworkChanged(true)
	waitUntil(t, func() bool {
		count, err := c.db.CountDirty(context.Background())
		return err == nil && count == 0
	})

	entry, err := c.db.GetByPath(context.Background(), "app-a", "doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(fake.Content(entry.RemoteID)); got != "offline edit" {
		t.Errorf("remote content = %q", got)
	}
}

func TestRemoteDeleteAppliedLocally(t *testing.T) {
	c, fake, cfg := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeOK {
		t.Fatal(code)
	}
	// Establish the change cursor
	if r := awaitRemote(t, c); r.Code != utils.CodeNoChange {
		t.Fatalf("baseline fetch = %v", r.Code)
	}

	local := filepath.Join(cfg.LocalRoot, "app-a", "doc.txt")
	if err := os.WriteFile(local, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	code := await(t, func(cb scheduler.Callback) {
		c.ApplyLocalChange("app-a", "doc.txt", types.FileChange{Type: types.ChangeCreated, MTime: time.Unix(100, 0)}, nil, cb)
	})
	if code != utils.CodeOK {
		t.Fatal(code)
	}
	entry, err := c.db.GetByPath(context.Background(), "app-a", "doc.txt")
	if err != nil {
		t.Fatal(err)
	}

	// The file disappears remotely; no local edits are pending
	fake.PushChange(synctest.RemovedChange(entry.RemoteID, time.Unix(500, 0)))
	result := awaitRemote(t, c)
	if result.Code != utils.CodeOK {
		t.Fatalf("process remote change = %v", result.Code)
	}
	if len(result.Paths) != 1 || result.Paths[0] != "doc.txt" {
		t.Errorf("affected paths = %v, want [doc.txt]", result.Paths)
	}

	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("local file should be removed")
	}
	if count, _ := c.db.CountDirty(context.Background()); count != 0 {
		t.Errorf("CountDirty = %d", count)
	}
}

func TestPushNotificationTriggersFetch(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeOK {
		t.Fatal(code)
	}
	if r := awaitRemote(t, c); r.Code != utils.CodeNoChange {
		t.Fatal(r.Code)
	}

	appRoot, err := c.db.FindAppRoot(context.Background(), "app-a")
	if err != nil {
		t.Fatal(err)
	}
	obj := synctest.TestObject("file-new", "pushed.txt", appRoot.RemoteID)
	fake.SeedObject(obj, []byte("pushed content"))
	fake.PushChange(synctest.ModifiedChange(obj, time.Unix(600, 0)))

	c.NotifyRemoteChange()
	waitUntil(t, func() bool {
		entry, err := c.db.GetByPath(context.Background(), "app-a", "pushed.txt")
		return err == nil && !entry.Dirty
	})

	data, err := os.ReadFile(filepath.Join(c.cfg.LocalRoot, "app-a", "pushed.txt"))
	if err != nil {
		t.Fatalf("pulled file: %v", err)
	}
	if string(data) != "pushed content" {
		t.Errorf("content = %q", data)
	}
}

func TestUninstallWithPurge(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeOK {
		t.Fatal(code)
	}
	appRoot, err := c.db.FindAppRoot(context.Background(), "app-a")
	if err != nil {
		t.Fatal(err)
	}

	if code := await(t, func(cb scheduler.Callback) { c.UninstallRoot("app-a", true, cb) }); code != utils.CodeOK {
		t.Fatalf("uninstall = %v", code)
	}

	if fake.Object(appRoot.RemoteID) != nil {
		t.Error("remote root should be purged")
	}
	statuses, err := c.OriginStatusMap(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 0 {
		t.Errorf("origin map after uninstall = %+v", statuses)
	}
}

func TestAuthFailureDrivesStateMachine(t *testing.T) {
	c, fake, _ := newTestCoordinator(t)
	startOk(t, c)

	fake.CreateFolderFunc = func(string, string) (*types.RemoteObject, error) {
		return nil, utils.NewSyncError(utils.CodeAuthRequired, "token expired").Build()
	}

	if code := await(t, func(cb scheduler.Callback) { c.RegisterRoot("app-a", "A", cb) }); code != utils.CodeAuthRequired {
		t.Fatalf("register = %v, want AUTH_REQUIRED", code)
	}
	waitUntil(t, func() bool {
		return c.ServiceState() == types.StateAuthenticationRequired
	})
}

func TestReconciliation_UninstallsRemovedApps(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalRoot = t.TempDir()

	fake := synctest.NewFakeRemote()
	db := synctest.NewTestIndex(t)

	// The index knows two apps, but the host registry only keeps one,
	// disabled.
	reg := registry.NewStaticRegistry()
	reg.Install("app-b", false)
	ctx := context.Background()
	for _, appID := range []string{"app-a", "app-b"} {
		if err := db.CreateRoot(ctx, index.SyncRoot{AppID: appID, Label: appID, Enabled: true}); err != nil {
			t.Fatal(err)
		}
	}

	c := New(Options{Config: cfg, Index: db, Remote: fake, Registry: reg})
	t.Cleanup(c.Close)
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, func() bool {
		statuses, err := c.OriginStatusMap(ctx)
		if err != nil {
			return false
		}
		_, gone := statuses["app-a"]
		return !gone && statuses["app-b"] == types.OriginDisabled
	})
}
