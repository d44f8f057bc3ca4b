package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type flakyCounter struct {
	mu      sync.Mutex
	fails   int
	calls   int
	applied map[string]bool
	done    chan struct{}
}

func (f *flakyCounter) IncrementAttendanceCounter(_ context.Context, meetingID, memberUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("store unavailable")
	}
	f.applied[meetingID+"/"+memberUID] = true
	close(f.done)
	return nil
}

func TestCounterWorker_RetriesUntilApplied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(8)
	store := &flakyCounter{fails: 2, applied: map[string]bool{}, done: make(chan struct{})}
	w := NewCounterWorker(q, store, 5, nil)
	w.backoff = time.Millisecond

	require.NoError(t, NewRetrier(q).RetryCounter(ctx, "m1", "u1"))
	go func() { _ = w.Run(ctx) }()

	select {
	case <-store.done:
	case <-time.After(2 * time.Second):
		t.Fatal("counter never applied")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 3, store.calls)
	assert.True(t, store.applied["m1/u1"])
}

func TestCounterWorker_GivesUp(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	q := NewInMemory(8)
	store := &flakyCounter{fails: 100, applied: map[string]bool{}, done: make(chan struct{})}
	w := NewCounterWorker(q, store, 2, zap.New(core))
	w.backoff = time.Millisecond

	w.handle(context.Background(), CounterJob{MeetingID: "m1", MemberUID: "u1", Attempt: 1})

	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 1, logs.FilterMessage("attendance counter retries exhausted").Len())
	select {
	case <-q.ch:
		t.Fatal("job requeued after exhausting attempts")
	default:
	}
}

type downCounter struct{}

func (downCounter) IncrementAttendanceCounter(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func TestCounterWorker_SmallQueueKeepsDraining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(1)
	w := NewCounterWorker(q, downCounter{}, 3, nil)
	w.backoff = time.Millisecond
	go func() { _ = w.Run(ctx) }()

	r := NewRetrier(q)
	for i := 0; i < 8; i++ {
		pubCtx, pubCancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.RetryCounter(pubCtx, "m1", "u1")
		pubCancel()
		require.NoError(t, err, "publish %d blocked on a full queue", i)
	}
}
