package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CounterStore applies attendance counter increments. Applying the same
// increment twice must leave the counter unchanged.
type CounterStore interface {
	IncrementAttendanceCounter(ctx context.Context, meetingID, memberUID string) error
}

// DefaultMaxAttempts bounds the attempts per job when none is configured.
const DefaultMaxAttempts = 5

// CounterWorker drains counter jobs from a queue and applies them, retrying
// each job in place with a growing backoff. Jobs are never published back to
// the queue being drained.
type CounterWorker struct {
	q           Queue
	store       CounterStore
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

// NewCounterWorker creates a worker. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewCounterWorker(q Queue, store CounterStore, maxAttempts int, logger *zap.Logger) *CounterWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &CounterWorker{
		q:           q,
		store:       store,
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		log:         logger.Named("counter-worker"),
	}
}

// Run consumes until ctx is done.
func (w *CounterWorker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("counter worker started")
	for msg := range messages {
		if msg.Type != TypeAttendanceCounter {
			continue
		}
		job, err := DecodeCounterJob(msg)
		if err != nil {
			w.log.Warn("dropping counter job", zap.Error(err))
			continue
		}
		w.handle(ctx, job)
	}
	w.log.Info("counter worker stopped")
	return nil
}

func (w *CounterWorker) handle(ctx context.Context, job CounterJob) {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	for {
		fields := []zap.Field{
			zap.String("meeting_id", job.MeetingID),
			zap.String("member_uid", job.MemberUID),
			zap.Int("attempt", job.Attempt),
		}
		err := w.store.IncrementAttendanceCounter(ctx, job.MeetingID, job.MemberUID)
		if err == nil {
			w.log.Info("attendance counter applied", fields...)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if job.Attempt >= w.maxAttempts {
			w.log.Error("attendance counter retries exhausted", append(fields, zap.Error(err))...)
			return
		}
		w.log.Warn("attendance counter retry failed", append(fields, zap.Error(err))...)

		select {
		case <-time.After(w.backoff * time.Duration(job.Attempt)):
		case <-ctx.Done():
			return
		}
		job.Attempt++
	}
}
