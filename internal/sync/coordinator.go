// Package sync hosts the Coordinator: the component that owns the
// service-availability state machine, the task scheduler and the
// metadata index, and exposes the engine's public API. All mutating
// work is posted to the scheduler's single worker; public calls
// return immediately and complete through status callbacks.
package sync

import (
	"context"
	"io"
	stdsync "sync"

	"github.com/dl-alexandre/gsyncd/internal/config"
	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/registry"
	"github.com/dl-alexandre/gsyncd/internal/remote"
	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/dl-alexandre/gsyncd/internal/sync/task"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

// Options carries the Coordinator's injected dependencies
type Options struct {
	Config   *config.Config
	Index    *index.DB
	Remote   remote.Service
	Registry registry.AppRegistry
	Logger   logging.Logger
}

// Coordinator drives the sync engine. Construct with New, then call
// Start once the index is ready; requests made before Start are
// deferred and run, in order, right after initialization.
type Coordinator struct {
	cfg      *config.Config
	db       *index.DB
	remote   remote.Service
	registry registry.AppRegistry
	logger   logging.Logger
	sched    *scheduler.Scheduler
	deps     task.Deps
	hub      *observerHub

	mu             stdsync.Mutex
	state          types.ServiceState
	syncEnabled    bool
	credentialsOK  bool
	networkOK      bool
	backendHealthy bool

	// shouldCheckRemote is flipped by push notifications and consulted
	// at the next scheduling decision; fetchInFlight keeps the fetch
	// task self-mutually-exclusive.
	shouldCheckRemote bool
	fetchInFlight     bool

	// fatal blocks all further scheduling after index corruption
	fatal bool

	initialized bool
	deferred    []func()
}

// New wires a Coordinator. The initial state assumes the network is
// reachable and credentials are not yet proven; NotifyCredentialsReady
// moves the machine toward Ok.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.PermissiveRegistry{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	c := &Coordinator{
		cfg:         cfg,
		db:          opts.Index,
		remote:      opts.Remote,
		registry:    reg,
		logger:      logger,
		hub:         newObserverHub(),
		syncEnabled: true,
		networkOK:   true,
	}
	c.state = c.computeStateLocked()

	c.deps = task.Deps{
		Index:                 opts.Index,
		Remote:                opts.Remote,
		Logger:                logger,
		LocalRoot:             cfg.LocalRoot,
		DefaultConflictPolicy: cfg.DefaultConflictPolicy,
		FetchPageSize:         int64(cfg.FetchPageSize),
		NotifyFileStatus:      c.hub.notifyFile,
	}
	c.sched = scheduler.New(scheduler.Config{
		MaxBackgroundTasks: cfg.MaxBackgroundTasks,
		Logger:             logger,
	})
	c.sched.SetCompletionHook(c.onTaskComplete)
	return c
}

// Start reconciles the index against the host application registry
// and releases any requests deferred before initialization.
func (c *Coordinator) Start(ctx context.Context) error {
	apps, err := c.db.ListRegisteredApps(ctx)
	if err != nil {
		return err
	}

	for _, appID := range apps {
		switch {
		case !c.registry.IsInstalled(appID):
			c.logger.Info("reconcile: app no longer installed", logging.F("app_id", appID))
			c.sched.Schedule(task.NewUninstall(c.deps, appID, false), scheduler.PriorityHigh, nil)
		case !c.registry.IsEnabled(appID):
			enabled, err := c.db.IsAppEnabled(ctx, appID)
			if err != nil {
				return err
			}
			if enabled {
				c.logger.Info("reconcile: app disabled by host", logging.F("app_id", appID))
				c.sched.Schedule(task.NewDisable(c.deps, appID), scheduler.PriorityHigh, nil)
			}
		}
	}

	c.mu.Lock()
	c.initialized = true
	deferred := c.deferred
	c.deferred = nil
	c.mu.Unlock()

	for _, fn := range deferred {
		fn()
	}
	return nil
}

// Close drains the scheduler and closes observer channels
func (c *Coordinator) Close() {
	c.sched.Close()
	c.hub.close()
}

// ServiceState returns the current availability state
func (c *Coordinator) ServiceState() types.ServiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a state observer; the returned func removes it
func (c *Coordinator) Subscribe(fn StateObserver) func() {
	return c.hub.subscribeState(fn)
}

// SubscribeStateChanges returns a buffered channel of transitions
func (c *Coordinator) SubscribeStateChanges(buffer int) (<-chan StateChange, func()) {
	return c.hub.subscribeStateChan(buffer)
}

// SubscribeFileStatus registers a per-file completion observer
func (c *Coordinator) SubscribeFileStatus(fn FileStatusObserver) func() {
	return c.hub.subscribeFiles(fn)
}

// --- signals -----------------------------------------------------------

// SetSyncEnabled toggles the whole engine. Disabling does not discard
// pending changes; they drain on re-enable.
func (c *Coordinator) SetSyncEnabled(enabled bool) {
	c.mu.Lock()
	c.syncEnabled = enabled
	notify := c.recomputeLocked("sync toggled")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// NotifyCredentialsReady signals that a valid token is available
func (c *Coordinator) NotifyCredentialsReady() {
	c.mu.Lock()
	c.credentialsOK = true
	c.backendHealthy = true
	notify := c.recomputeLocked("credentials ready")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// NotifyCredentialsInvalid signals token revocation or expiry
func (c *Coordinator) NotifyCredentialsInvalid() {
	c.mu.Lock()
	c.credentialsOK = false
	notify := c.recomputeLocked("credentials invalid")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// NotifyNetworkChanged signals a connectivity change from the network
// monitor. Going online also clears backend-health backoff.
func (c *Coordinator) NotifyNetworkChanged(online bool) {
	c.mu.Lock()
	c.networkOK = online
	if online {
		c.backendHealthy = true
	}
	notify := c.recomputeLocked("network changed")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// NotifyRemoteChange records a push notification from the change
// feed. When the service is Ok a fetch is scheduled immediately;
// otherwise the flag is consulted at the next scheduling decision.
func (c *Coordinator) NotifyRemoteChange() {
	c.mu.Lock()
	c.shouldCheckRemote = true
	schedule := c.state == types.StateOk && !c.fetchInFlight && !c.fatal
	if schedule {
		c.fetchInFlight = true
	}
	c.mu.Unlock()

	if schedule {
		c.scheduleFetchRound(scheduler.PriorityMedium, nil)
	}
}

// --- public operations -------------------------------------------------

// RegisterRoot registers an application for synchronization. A fully
// registered app completes immediately without queueing a task.
func (c *Coordinator) RegisterRoot(appID, label string, cb scheduler.Callback) {
	c.submit(func() {
		if code, blocked := c.gate(); blocked {
			complete(cb, code)
			return
		}
		if c.alreadyRegistered(appID) {
			complete(cb, utils.CodeOK)
			return
		}
		c.sched.Schedule(task.NewRegister(c.deps, appID, label), scheduler.PriorityHigh, cb)
	})
}

// alreadyRegistered reports whether both the sync root and its tracked
// app-root entry exist. Read-only, so it may bypass the task queue.
func (c *Coordinator) alreadyRegistered(appID string) bool {
	ctx := context.Background()
	if _, err := c.db.GetRoot(ctx, appID); err != nil {
		return false
	}
	_, err := c.db.FindAppRoot(ctx, appID)
	return err == nil
}

// EnableRoot turns synchronization on for one application
func (c *Coordinator) EnableRoot(appID string, cb scheduler.Callback) {
	c.submit(func() {
		c.sched.Schedule(task.NewEnable(c.deps, appID), scheduler.PriorityHigh, cb)
	})
}

// DisableRoot turns synchronization off for one application
func (c *Coordinator) DisableRoot(appID string, cb scheduler.Callback) {
	c.submit(func() {
		c.sched.Schedule(task.NewDisable(c.deps, appID), scheduler.PriorityHigh, cb)
	})
}

// UninstallRoot removes an application, optionally purging its remote
// folder.
func (c *Coordinator) UninstallRoot(appID string, purgeRemote bool, cb scheduler.Callback) {
	c.submit(func() {
		if purgeRemote {
			if code, blocked := c.gate(); blocked {
				complete(cb, code)
				return
			}
		}
		c.sched.Schedule(task.NewUninstall(c.deps, appID, purgeRemote), scheduler.PriorityHigh, cb)
	})
}

// SetConflictPolicy stores a per-root conflict policy override
func (c *Coordinator) SetConflictPolicy(appID, policy string, cb scheduler.Callback) {
	c.submit(func() {
		c.sched.Schedule(task.NewSetConflictPolicy(c.deps, appID, policy), scheduler.PriorityHigh, cb)
	})
}

// ApplyLocalChange records one local change and propagates it when
// the service is Ok; otherwise the change is only recorded and drains
// on the next transition to Ok. While Disabled the call has no effect.
func (c *Coordinator) ApplyLocalChange(appID, relPath string, change types.FileChange, snapshot io.Reader, cb scheduler.Callback) {
	c.submit(func() {
		c.mu.Lock()
		state := c.state
		fatal := c.fatal
		c.mu.Unlock()

		switch {
		case fatal:
			complete(cb, utils.CodeIndexCorrupt)
		case state == types.StateDisabled:
			complete(cb, utils.CodeSyncDisabled)
		case state == types.StateOk:
			c.sched.Schedule(task.NewLocalSync(c.deps, appID, relPath, change, snapshot),
				scheduler.PriorityMedium, c.withReregister(appID, relPath, change, cb))
		default:
			// Unavailable: record only, drain later
			c.sched.Schedule(task.NewRecordLocalChange(c.deps, appID, relPath, change),
				scheduler.PriorityMedium, cb)
		}
	})
}

// RemoteChangeResult is the completion report of a fetch round: the
// aggregate status plus the relative paths the round applied locally.
type RemoteChangeResult struct {
	Code  utils.Code
	Paths []string
}

// ProcessRemoteChange fetches pending remote change pages and applies
// them locally.
func (c *Coordinator) ProcessRemoteChange(cb func(RemoteChangeResult)) {
	c.submit(func() {
		if code, blocked := c.gate(); blocked {
			completeRemote(cb, code, nil)
			return
		}
		c.mu.Lock()
		if c.fetchInFlight {
			c.mu.Unlock()
			completeRemote(cb, utils.CodeNoChange, nil)
			return
		}
		c.fetchInFlight = true
		c.mu.Unlock()
		c.scheduleFetchRound(scheduler.PriorityMedium, cb)
	})
}

// Drain pushes every pending local change, then applies every pending
// remote change.
func (c *Coordinator) Drain(cb scheduler.Callback) {
	c.submit(func() {
		if code, blocked := c.gate(); blocked {
			complete(cb, code)
			return
		}
		c.sched.Schedule(task.NewDrainLocal(c.deps), scheduler.PriorityMedium, func(local utils.Code) {
			if !local.IsSuccess() {
				complete(cb, local)
				return
			}
			c.sched.Schedule(task.NewDrainRemote(c.deps), scheduler.PriorityMedium, func(rem utils.Code) {
				complete(cb, worst(local, rem))
			})
		})
	})
}

// OriginStatusMap reports each registered app's enabled flag
func (c *Coordinator) OriginStatusMap(ctx context.Context) (map[string]types.OriginStatus, error) {
	apps, err := c.db.ListRegisteredApps(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]types.OriginStatus, len(apps))
	for _, appID := range apps {
		enabled, err := c.db.IsAppEnabled(ctx, appID)
		if err != nil {
			return nil, err
		}
		if enabled {
			statuses[appID] = types.OriginEnabled
		} else {
			statuses[appID] = types.OriginDisabled
		}
	}
	return statuses, nil
}

// DumpIndex returns the full index snapshot for diagnostics
func (c *Coordinator) DumpIndex(ctx context.Context) (*index.Snapshot, error) {
	return c.db.Dump(ctx)
}

// ResetIndex drops and re-creates the index after fatal corruption
func (c *Coordinator) ResetIndex(ctx context.Context) error {
	if err := c.db.Reset(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.fatal = false
	notify := c.recomputeLocked("index reset")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
	return nil
}

// --- internals ---------------------------------------------------------

// submit runs fn now, or defers it until Start when called pre-init
func (c *Coordinator) submit(fn func()) {
	c.mu.Lock()
	if !c.initialized {
		c.deferred = append(c.deferred, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// gate rejects operations that must not touch the remote in the
// current state.
func (c *Coordinator) gate() (utils.Code, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.fatal:
		return utils.CodeIndexCorrupt, true
	case c.state == types.StateDisabled:
		return utils.CodeSyncDisabled, true
	case c.state == types.StateAuthenticationRequired:
		return utils.CodeAuthRequired, true
	case c.state == types.StateTemporaryUnavailable:
		return utils.CodeServiceUnavailable, true
	}
	return utils.CodeOK, false
}

func (c *Coordinator) computeStateLocked() types.ServiceState {
	switch {
	case c.fatal:
		// Unrecoverable index failure disables the service until an
		// explicit ResetIndex.
		return types.StateDisabled
	case !c.syncEnabled:
		return types.StateDisabled
	case !c.credentialsOK:
		return types.StateAuthenticationRequired
	case !c.networkOK || !c.backendHealthy:
		return types.StateTemporaryUnavailable
	default:
		return types.StateOk
	}
}

// recomputeLocked derives the new state from the signal flags. The
// returned closure (nil when nothing changed) must be invoked after
// the lock is released; it notifies observers and performs the
// enter-Ok scheduling decision.
func (c *Coordinator) recomputeLocked(reason string) func() {
	next := c.computeStateLocked()
	if next == c.state {
		return nil
	}
	prev := c.state
	c.state = next

	// Entering Ok: the service may have missed remote changes while
	// away, so a listing is due; pending local changes drain first
	// when the drain-preference is set.
	enteringOk := next == types.StateOk && !c.fatal
	scheduleFetch := false
	if enteringOk {
		c.shouldCheckRemote = true
		if !c.cfg.PreferLocalDrain && !c.fetchInFlight {
			c.fetchInFlight = true
			scheduleFetch = true
		}
	}

	return func() {
		c.logger.Info("service state changed",
			logging.F("from", prev.String()),
			logging.F("to", next.String()),
			logging.F("reason", reason),
		)
		if enteringOk {
			if scheduleFetch {
				c.scheduleFetchRound(scheduler.PriorityMedium, nil)
			} else {
				// The fetch round follows via the completion hook once
				// the drain settles.
				c.sched.Schedule(task.NewDrainLocal(c.deps), scheduler.PriorityMedium, nil)
			}
		}
		c.hub.notifyState(next, reason)
	}
}

// scheduleFetchRound chains fetch, remote drain and an opportunistic
// conflict pass. fetchInFlight must already be held by the caller. The
// round's file-status notifications are also collected so the caller
// learns which paths it touched.
func (c *Coordinator) scheduleFetchRound(priority scheduler.Priority, cb func(RemoteChangeResult)) {
	var paths []string
	deps := c.deps
	base := deps.NotifyFileStatus
	deps.NotifyFileStatus = func(s types.FileStatus) {
		if s.Direction == types.DirectionRemoteToLocal {
			paths = append(paths, s.Path)
		}
		if base != nil {
			base(s)
		}
	}

	c.sched.Schedule(task.NewFetchAll(deps), priority, func(fetched utils.Code) {
		c.mu.Lock()
		c.fetchInFlight = false
		if fetched.IsSuccess() {
			c.shouldCheckRemote = false
		}
		c.mu.Unlock()

		if !fetched.IsSuccess() {
			completeRemote(cb, fetched, nil)
			return
		}
		if fetched == utils.CodeNoChange {
			completeRemote(cb, fetched, nil)
			c.tryConflictPass()
			return
		}
		c.sched.Schedule(task.NewDrainRemote(deps), priority, func(drained utils.Code) {
			completeRemote(cb, worst(fetched, drained), paths)
			if drained.IsSuccess() {
				c.tryConflictPass()
			}
		})
	})
}

// tryConflictPass runs the resolver only when the engine is otherwise
// idle; the task itself re-checks quiescence against the index.
func (c *Coordinator) tryConflictPass() {
	c.mu.Lock()
	eligible := c.state == types.StateOk && !c.fatal
	c.mu.Unlock()
	if eligible {
		c.sched.ScheduleIfIdle(task.NewConflictPass(c.deps), nil)
	}
}

// withReregister retries a local sync once after re-registering the
// app when its remote root turned out to be unknown.
func (c *Coordinator) withReregister(appID, relPath string, change types.FileChange, cb scheduler.Callback) scheduler.Callback {
	return func(code utils.Code) {
		if code != utils.CodeUnknownOrigin {
			complete(cb, code)
			return
		}
		c.logger.Warn("remote root unknown, re-registering", logging.F("app_id", appID))
		c.sched.Schedule(task.NewRegister(c.deps, appID, appID), scheduler.PriorityHigh, func(reg utils.Code) {
			if reg != utils.CodeOK {
				complete(cb, reg)
				return
			}
			c.sched.Schedule(task.NewLocalSync(c.deps, appID, relPath, change, nil),
				scheduler.PriorityMedium, cb)
		})
	}
}

// onTaskComplete is the scheduler's completion hook: the single place
// where task outcomes feed the state machine.
func (c *Coordinator) onTaskComplete(t scheduler.Task, code utils.Code) {
	c.mu.Lock()
	switch code {
	case utils.CodeAuthRequired:
		c.credentialsOK = false
	case utils.CodeNetworkError, utils.CodeServiceUnavailable, utils.CodeQuotaExceeded, utils.CodeRateLimited:
		c.backendHealthy = false
	case utils.CodeIndexCorrupt, utils.CodeIndexIO:
		c.fatal = true
	}

	followUpFetch := code.IsSuccess() &&
		t.Name() == "local-drain" &&
		c.state == types.StateOk &&
		c.shouldCheckRemote && !c.fetchInFlight && !c.fatal
	if followUpFetch {
		c.fetchInFlight = true
	}
	notify := c.recomputeLocked("task " + t.Name() + ": " + string(code))
	c.mu.Unlock()

	if code.IsFatal() {
		c.logger.Error("index failure, scheduling stopped",
			logging.F("task", t.Name()),
			logging.F("status", string(code)),
		)
	}
	if notify != nil {
		notify()
	}
	if followUpFetch {
		c.scheduleFetchRound(scheduler.PriorityMedium, nil)
	}
}

func complete(cb scheduler.Callback, code utils.Code) {
	if cb != nil {
		cb(code)
	}
}

func completeRemote(cb func(RemoteChangeResult), code utils.Code, paths []string) {
	if cb != nil {
		cb(RemoteChangeResult{Code: code, Paths: paths})
	}
}

// worst keeps the failure, or OK over NO_CHANGE
func worst(a, b utils.Code) utils.Code {
	if !a.IsSuccess() {
		return a
	}
	if !b.IsSuccess() {
		return b
	}
	if a == utils.CodeOK || b == utils.CodeOK {
		return utils.CodeOK
	}
	return utils.CodeNoChange
}
