package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypeAttendanceCounter marks a deferred attendance counter increment.
const TypeAttendanceCounter = "attendance.counter"

// CounterJob asks a worker to apply the counter increment of one attendance
// record. Attempt counts deliveries so far.
type CounterJob struct {
	MeetingID string `json:"meeting_id"`
	MemberUID string `json:"member_uid"`
	Attempt   int    `json:"attempt"`
}

// NewCounterMessage wraps job in a message.
func NewCounterMessage(job CounterJob) (Message, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeAttendanceCounter, Body: body}, nil
}

// DecodeCounterJob reads the job out of a counter message.
func DecodeCounterJob(msg Message) (CounterJob, error) {
	if msg.Type != TypeAttendanceCounter {
		return CounterJob{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var job CounterJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return CounterJob{}, fmt.Errorf("decode counter job: %w", err)
	}
	if job.MeetingID == "" || job.MemberUID == "" {
		return CounterJob{}, fmt.Errorf("counter job missing meeting or member")
	}
	return job, nil
}

// Retrier publishes failed counter increments for the worker.
type Retrier struct {
	q Queue
}

// NewRetrier publishes to q.
func NewRetrier(q Queue) *Retrier {
	return &Retrier{q: q}
}

// RetryCounter enqueues the first retry of a counter increment.
func (r *Retrier) RetryCounter(ctx context.Context, meetingID, memberUID string) error {
	msg, err := NewCounterMessage(CounterJob{MeetingID: meetingID, MemberUID: memberUID, Attempt: 1})
	if err != nil {
		return err
	}
	return r.q.Publish(ctx, msg)
}
