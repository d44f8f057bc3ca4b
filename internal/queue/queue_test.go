package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestRetrier_InMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	r := NewRetrier(q)
	require.NoError(t, r.RetryCounter(ctx, "m1", "u1"))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	job, err := DecodeCounterJob(receive(t, ch))
	require.NoError(t, err)
	assert.Equal(t, CounterJob{MeetingID: "m1", MemberUID: "u1", Attempt: 1}, job)
}

func TestInMemory_ConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("consume channel not closed")
	}
}

func TestDecodeCounterJob_Rejects(t *testing.T) {
	_, err := DecodeCounterJob(Message{Type: "other", Body: []byte(`{}`)})
	assert.Error(t, err)

	_, err = DecodeCounterJob(Message{Type: TypeAttendanceCounter, Body: []byte(`not json`)})
	assert.Error(t, err)

	_, err = DecodeCounterJob(Message{Type: TypeAttendanceCounter, Body: []byte(`{"meeting_id":"m1"}`)})
	assert.Error(t, err)
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available:", err)
	}

	key := "association:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	q := NewRedisQueue(client, key, nil)
	require.NoError(t, NewRetrier(q).RetryCounter(ctx, "m1", "u1"))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	job, err := DecodeCounterJob(receive(t, ch))
	require.NoError(t, err)
	assert.Equal(t, "m1", job.MeetingID)
	assert.Equal(t, "u1", job.MemberUID)
}
