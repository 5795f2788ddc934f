// Package scheduler provides the single-writer, priority-ordered task
// queue that serializes every mutating sync operation. Mutual
// exclusion for the metadata index is structural: with the default
// configuration at most one task is in flight, so tasks never need
// locks around shared sync state.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/google/uuid"
)

// Priority orders queued-but-not-started tasks. Higher priorities
// always dispatch before lower ones; within a priority, FIFO.
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Task is one unit of work. Run never panics across this boundary;
// it reports its outcome as a status code.
type Task interface {
	Name() string
	Run(ctx context.Context) utils.Code
}

// Callback receives the task's completion status
type Callback func(utils.Code)

// CompletionHook observes every task completion before the next
// queued task is dispatched. The coordinator derives service-state
// transitions here.
type CompletionHook func(task Task, code utils.Code)

type taskFunc struct {
	name string
	fn   func(ctx context.Context) utils.Code
}

func (t *taskFunc) Name() string                       { return t.name }
func (t *taskFunc) Run(ctx context.Context) utils.Code { return t.fn(ctx) }

// NewTask wraps a function as a Task
func NewTask(name string, fn func(ctx context.Context) utils.Code) Task {
	return &taskFunc{name: name, fn: fn}
}

// Handle identifies one scheduled task in the registry
type Handle struct {
	ID       string
	Name     string
	Priority Priority
}

type entry struct {
	handle   Handle
	task     Task
	callback Callback
	priority Priority
	seq      uint64
	index    int
}

// Config configures a Scheduler
type Config struct {
	// MaxBackgroundTasks constrains how many tasks may execute
	// concurrently. The default of 1 forces strict serialization.
	MaxBackgroundTasks int
	Logger             logging.Logger
}

// Scheduler owns the queue, the task-handle registry and the worker
// dispatch loop.
type Scheduler struct {
	maxTasks int
	logger   logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	handles map[string]Handle
	seq     uint64
	running int
	closed  bool
	hook    CompletionHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler and starts its dispatch loop
func New(config Config) *Scheduler {
	maxTasks := config.MaxBackgroundTasks
	if maxTasks <= 0 {
		maxTasks = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		maxTasks: maxTasks,
		logger:   logger,
		handles:  make(map[string]Handle),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(1)
	go s.dispatchLoop()
	return s
}

// SetCompletionHook installs the coordinator's last-operation hook.
// Must be set before the first task is scheduled.
func (s *Scheduler) SetCompletionHook(hook CompletionHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Schedule enqueues a task at the given priority. The callback is
// invoked with the task's completion status; it never blocks the
// caller.
func (s *Scheduler) Schedule(task Task, priority Priority, callback Callback) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if callback != nil {
			go callback(utils.CodeAborted)
		}
		return Handle{}, false
	}
	return s.enqueueLocked(task, priority, callback), true
}

func (s *Scheduler) enqueueLocked(task Task, priority Priority, callback Callback) Handle {
	s.seq++
	handle := Handle{ID: uuid.New().String(), Name: task.Name(), Priority: priority}
	e := &entry{
		handle:   handle,
		task:     task,
		callback: callback,
		priority: priority,
		seq:      s.seq,
	}
	heap.Push(&s.queue, e)
	s.handles[handle.ID] = handle

	s.logger.Debug("task scheduled",
		logging.F("task", task.Name()),
		logging.F("priority", priority.String()),
		logging.F("id", handle.ID),
	)

	s.cond.Broadcast()
	return handle
}

// ScheduleIfIdle enqueues the task only when nothing is running and
// nothing is queued. Used for opportunistic work such as conflict
// checks.
func (s *Scheduler) ScheduleIfIdle(task Task, callback Callback) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.running > 0 || s.queue.Len() > 0 {
		return false
	}
	s.enqueueLocked(task, PriorityIdle, callback)
	return true
}

// Idle reports whether no task is running or queued
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running == 0 && s.queue.Len() == 0
}

// PendingTasks returns the registered handles of queued tasks
func (s *Scheduler) PendingTasks() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	return handles
}

// Close stops the dispatch loop. Queued tasks complete with ABORTED;
// the in-flight task finishes first.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	var aborted []*entry
	for s.queue.Len() > 0 {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.handles, e.handle.ID)
		aborted = append(aborted, e)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, e := range aborted {
		if e.callback != nil {
			e.callback(utils.CodeAborted)
		}
	}

	s.wg.Wait()
	s.cancel()
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for !s.closed && (s.queue.Len() == 0 || s.running >= s.maxTasks) {
			s.cond.Wait()
		}
		if s.closed {
			for s.running > 0 {
				s.cond.Wait()
			}
			s.mu.Unlock()
			return
		}

		e := heap.Pop(&s.queue).(*entry)
		s.running++
		s.mu.Unlock()

		go s.run(e)
	}
}

// run executes one task, reports to the hook, then delivers the
// callback. The hook runs before the next dispatch so the coordinator
// observes completions in execution order.
func (s *Scheduler) run(e *entry) {
	code := s.execute(e.task)

	s.logger.Debug("task completed",
		logging.F("task", e.task.Name()),
		logging.F("status", string(code)),
	)

	s.mu.Lock()
	hook := s.hook
	delete(s.handles, e.handle.ID)
	s.mu.Unlock()

	if hook != nil {
		hook(e.task, code)
	}
	if e.callback != nil {
		e.callback(code)
	}

	s.mu.Lock()
	s.running--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// execute runs one task, converting a panic into a FAILED status so a
// misbehaving task cannot take down the dispatch loop.
func (s *Scheduler) execute(task Task) (code utils.Code) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				logging.F("task", task.Name()),
				logging.F("panic", fmt.Sprint(r)),
			)
			code = utils.CodeFailed
		}
	}()
	return task.Run(s.ctx)
}

// taskQueue is a max-heap on (priority, -seq)
type taskQueue []*entry

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
