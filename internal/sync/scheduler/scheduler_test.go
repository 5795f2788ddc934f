package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/utils"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(Config{})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSchedule_DeliversStatusViaCallback(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan utils.Code, 1)
	s.Schedule(NewTask("ok-task", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), PriorityMedium, func(code utils.Code) {
		done <- code
	})

	select {
	case code := <-done:
		if code != utils.CodeOK {
			t.Errorf("code = %v", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never delivered")
	}
}

func TestSchedule_SerializesExecution(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		s.Schedule(NewTask("serialized", func(ctx context.Context) utils.Code {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return utils.CodeOK
		}), PriorityMedium, func(utils.Code) { wg.Done() })
	}

	wg.Wait()
	if maxInFlight != 1 {
		t.Errorf("maxInFlight = %d, want 1 (default serialization)", maxInFlight)
	}
}

func TestSchedule_PriorityOrdering(t *testing.T) {
	s := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	// Occupy the single slot so subsequent tasks stay queued
	wg.Add(1)
	s.Schedule(NewTask("in-flight", func(ctx context.Context) utils.Code {
		close(started)
		<-release
		return utils.CodeOK
	}), PriorityMedium, func(utils.Code) { wg.Done() })
	<-started

	record := func(name string) Task {
		return NewTask(name, func(ctx context.Context) utils.Code {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return utils.CodeOK
		})
	}

	wg.Add(4)
	cb := func(utils.Code) { wg.Done() }
	s.Schedule(record("medium-1"), PriorityMedium, cb)
	s.Schedule(record("medium-2"), PriorityMedium, cb)
	s.Schedule(record("high-1"), PriorityHigh, cb)
	s.Schedule(record("idle-1"), PriorityIdle, cb)

	close(release)
	wg.Wait()

	want := []string{"high-1", "medium-1", "medium-2", "idle-1"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q (full order %v)", i, order[i], want[i], order)
		}
	}
}

func TestScheduleIfIdle(t *testing.T) {
	s := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	s.Schedule(NewTask("busy", func(ctx context.Context) utils.Code {
		close(started)
		<-release
		return utils.CodeOK
	}), PriorityMedium, func(utils.Code) { close(done) })
	<-started

	if s.ScheduleIfIdle(NewTask("opportunistic", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), nil) {
		t.Error("ScheduleIfIdle should refuse while a task is running")
	}

	close(release)
	<-done
	waitFor(t, s.Idle)

	idleDone := make(chan struct{})
	if !s.ScheduleIfIdle(NewTask("opportunistic", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), func(utils.Code) { close(idleDone) }) {
		t.Fatal("ScheduleIfIdle should accept when idle")
	}
	<-idleDone
}

func TestCompletionHook_RunsBeforeNextDispatch(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	var events []string
	s.SetCompletionHook(func(task Task, code utils.Code) {
		mu.Lock()
		events = append(events, "hook:"+task.Name())
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	cb := func(utils.Code) { wg.Done() }
	for _, name := range []string{"first", "second"} {
		taskName := name
		s.Schedule(NewTask(taskName, func(ctx context.Context) utils.Code {
			mu.Lock()
			events = append(events, "run:"+taskName)
			mu.Unlock()
			return utils.CodeOK
		}), PriorityMedium, cb)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"run:first", "hook:first", "run:second", "hook:second"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestFailingTask_DoesNotStallQueue(t *testing.T) {
	s := newTestScheduler(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var codes []utils.Code
	var mu sync.Mutex
	cb := func(code utils.Code) {
		mu.Lock()
		codes = append(codes, code)
		mu.Unlock()
		wg.Done()
	}

	s.Schedule(NewTask("failing", func(ctx context.Context) utils.Code {
		return utils.CodeNetworkError
	}), PriorityMedium, cb)
	s.Schedule(NewTask("following", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), PriorityMedium, cb)

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if codes[0] != utils.CodeNetworkError || codes[1] != utils.CodeOK {
		t.Errorf("codes = %v", codes)
	}
}

func TestPanickingTask_ReportedAsFailed(t *testing.T) {
	s := newTestScheduler(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var codes []utils.Code
	cb := func(code utils.Code) {
		mu.Lock()
		codes = append(codes, code)
		mu.Unlock()
		wg.Done()
	}

	s.Schedule(NewTask("panicking", func(ctx context.Context) utils.Code {
		panic("task bug")
	}), PriorityMedium, cb)
	s.Schedule(NewTask("following", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), PriorityMedium, cb)

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if codes[0] != utils.CodeFailed {
		t.Errorf("panicking task status = %v, want FAILED", codes[0])
	}
	if codes[1] != utils.CodeOK {
		t.Errorf("queue stalled after panic, following = %v", codes[1])
	}
}

func TestClose_AbortsQueuedTasks(t *testing.T) {
	s := New(Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule(NewTask("busy", func(ctx context.Context) utils.Code {
		close(started)
		<-release
		return utils.CodeOK
	}), PriorityMedium, nil)
	<-started

	aborted := make(chan utils.Code, 1)
	s.Schedule(NewTask("queued", func(ctx context.Context) utils.Code {
		t.Error("queued task must not run after Close")
		return utils.CodeOK
	}), PriorityMedium, func(code utils.Code) { aborted <- code })

	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	s.Close()

	select {
	case code := <-aborted:
		if code != utils.CodeAborted {
			t.Errorf("code = %v, want ABORTED", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queued task callback never delivered")
	}

	if _, ok := s.Schedule(NewTask("late", func(ctx context.Context) utils.Code {
		return utils.CodeOK
	}), PriorityMedium, nil); ok {
		t.Error("Schedule after Close should be rejected")
	}
}
