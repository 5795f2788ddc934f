package sync

import (
	stdsync "sync"

	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/google/uuid"
)

// StateChange is one service-state transition as seen by observers
type StateChange struct {
	State  types.ServiceState
	Reason string
}

// StateObserver receives every service-state transition
type StateObserver func(state types.ServiceState, reason string)

// FileStatusObserver receives per-file sync completions
type FileStatusObserver func(status types.FileStatus)

// observerHub manages subscriber registries. Callbacks run on the
// notifying goroutine; channel subscribers get a non-blocking send
// and drop transitions they are too slow to read.
type observerHub struct {
	mu       stdsync.Mutex
	state    map[string]StateObserver
	channels map[string]chan StateChange
	files    map[string]FileStatusObserver
	closed   bool
}

func newObserverHub() *observerHub {
	return &observerHub{
		state:    make(map[string]StateObserver),
		channels: make(map[string]chan StateChange),
		files:    make(map[string]FileStatusObserver),
	}
}

func (h *observerHub) subscribeState(fn StateObserver) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New().String()
	h.state[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.state, id)
	}
}

func (h *observerHub) subscribeStateChan(buffer int) (<-chan StateChange, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New().String()
	ch := make(chan StateChange, buffer)
	h.channels[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.channels[id]; ok {
			delete(h.channels, id)
			close(c)
		}
	}
}

func (h *observerHub) subscribeFiles(fn FileStatusObserver) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New().String()
	h.files[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.files, id)
	}
}

func (h *observerHub) notifyState(state types.ServiceState, reason string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	observers := make([]StateObserver, 0, len(h.state))
	for _, fn := range h.state {
		observers = append(observers, fn)
	}
	channels := make([]chan StateChange, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, fn := range observers {
		fn(state, reason)
	}
	change := StateChange{State: state, Reason: reason}
	for _, ch := range channels {
		select {
		case ch <- change:
		default:
		}
	}
}

func (h *observerHub) notifyFile(status types.FileStatus) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	observers := make([]FileStatusObserver, 0, len(h.files))
	for _, fn := range h.files {
		observers = append(observers, fn)
	}
	h.mu.Unlock()

	for _, fn := range observers {
		fn(status)
	}
}

func (h *observerHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.channels {
		delete(h.channels, id)
		close(ch)
	}
}
