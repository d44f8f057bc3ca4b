package attendance

import (
	"context"
	"sync"
)

// Registry owns the per-session rotation timers of this process, keyed by
// meeting id.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*timer
	wg     sync.WaitGroup
	closed bool
}

type timer struct {
	generation int64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*timer)}
}

// Launch runs fn in its own goroutine as the timer for meetingID, cancelling
// the timer it replaces. A timer for a newer generation is never replaced by
// an older one; Launch reports whether fn was started.
func (r *Registry) Launch(meetingID string, generation int64, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	prev := r.timers[meetingID]
	if prev != nil && prev.generation > generation {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{generation: generation, cancel: cancel, done: make(chan struct{})}
	r.timers[meetingID] = t
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer r.remove(meetingID, t)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Cancel stops the timer for meetingID and waits until it has returned, so no
// write from it can land afterwards. It is a no-op when no timer runs.
func (r *Registry) Cancel(meetingID string) {
	r.mu.Lock()
	t := r.timers[meetingID]
	delete(r.timers, meetingID)
	r.mu.Unlock()

	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// Running reports whether a timer is registered for meetingID.
func (r *Registry) Running(meetingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[meetingID]
	return ok
}

// Len returns the number of registered timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Close cancels every timer and waits for them. Launch is a no-op afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for id, t := range r.timers {
		t.cancel()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) remove(meetingID string, t *timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers[meetingID] == t {
		delete(r.timers, meetingID)
	}
}
