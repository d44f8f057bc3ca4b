package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SessionUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	m, err := s.CreateMeeting(ctx, Meeting{Topic: "Assembly", DurationMinutes: 15})
	require.NoError(t, err)

	_, err = s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Rotate: true, Token: "x"})
	assert.ErrorIs(t, err, ErrStaleGeneration, "rotation needs an active session")

	exp := time.Now().Add(time.Minute)
	sess, err := s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Status: StatusActive, Token: "a", ExpiresAt: &exp})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.Generation)
	assert.Equal(t, 15, sess.DurationMinutes)

	sess, err = s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Rotate: true, Token: "b", IfGeneration: 1})
	require.NoError(t, err)
	assert.Equal(t, "b", sess.Token)
	assert.Equal(t, int64(1), sess.Generation)

	_, err = s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Status: StatusExpired, IfGeneration: 7})
	assert.ErrorIs(t, err, ErrStaleGeneration)

	sess, err = s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Status: StatusExpired, Token: "c", ExpiresAt: &exp})
	require.NoError(t, err)
	assert.Empty(t, sess.Token)
	assert.Nil(t, sess.ExpiresAt)
	assert.Equal(t, int64(2), sess.Generation)

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.UpdateMeetingSession(ctx, "ghost", SessionUpdate{Status: StatusExpired})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	m, err := s.CreateMeeting(ctx, Meeting{Topic: "Assembly"})
	require.NoError(t, err)

	exp := time.Now().Add(time.Minute)
	_, err = s.UpdateMeetingSession(ctx, m.ID, SessionUpdate{Status: StatusActive, Token: "a", ExpiresAt: &exp})
	require.NoError(t, err)

	exp = exp.Add(time.Hour)
	sess, err := s.GetMeetingSession(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Before(exp))
}

func TestMemoryStore_MembersAndAttendance(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertMember(ctx, Member{UID: "u1", Name: "Ada"}))
	m, err := s.GetMember(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, AccountActive, m.Status)
	assert.Equal(t, "member", m.Role)

	rec := Record{MeetingID: "m1", MemberUID: "u1", ScannedAt: time.Now()}
	require.NoError(t, s.CreateAttendance(ctx, rec))
	assert.ErrorIs(t, s.CreateAttendance(ctx, rec), ErrDuplicate)

	require.NoError(t, s.IncrementAttendanceCounter(ctx, "m1", "u1"))
	require.NoError(t, s.IncrementAttendanceCounter(ctx, "m1", "u1"))
	require.NoError(t, s.IncrementAttendanceCounter(ctx, "m2", "u1"), "no record, nothing to count")

	require.NoError(t, s.UpsertMember(ctx, Member{UID: "u1", Name: "Ada", Surname: "Lovelace"}))
	m, err = s.GetMember(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.AttendanceCount, "upsert keeps the counter")
	assert.Equal(t, "Ada Lovelace", m.FullName())

	require.NoError(t, s.SetMemberStatus(ctx, "u1", AccountBlocked))
	status, err := s.AccountStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, AccountBlocked, status)
	assert.ErrorIs(t, s.SetMemberStatus(ctx, "ghost", AccountBlocked), ErrNotFound)
}

func TestMemoryStore_ListMeetingsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, topic := range []string{"first", "second", "third"} {
		_, err := s.CreateMeeting(ctx, Meeting{Topic: topic, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	meetings, err := s.ListMeetings(ctx)
	require.NoError(t, err)
	require.Len(t, meetings, 3)
	assert.Equal(t, "third", meetings[0].Topic)
	assert.Equal(t, "first", meetings[2].Topic)
	for _, m := range meetings {
		assert.Equal(t, StatusUpcoming, m.Status)
	}
}
