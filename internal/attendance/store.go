package attendance

import (
	"context"
)

// Store is the record store the protocol runs against.
//
// GetMeetingSession, UpdateMeetingSession and GetMember return ErrNotFound for
// unknown ids. UpdateMeetingSession returns ErrStaleGeneration when a
// conditional update loses. CreateAttendance returns ErrDuplicate when a
// record for the same (meeting, member) pair already exists; the store, not
// the caller, enforces that uniqueness. IncrementAttendanceCounter increments
// the member's counter at most once per attendance record.
type Store interface {
	GetMeetingSession(ctx context.Context, meetingID string) (Session, error)
	UpdateMeetingSession(ctx context.Context, meetingID string, upd SessionUpdate) (Session, error)
	ListActiveSessions(ctx context.Context) ([]Session, error)
	FindAttendance(ctx context.Context, meetingID, memberUID string) (*Record, error)
	CreateAttendance(ctx context.Context, rec Record) error
	IncrementAttendanceCounter(ctx context.Context, meetingID, memberUID string) error
	GetMember(ctx context.Context, uid string) (Member, error)
}

// MeetingStore holds the meeting records around the protocol.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, m Meeting) (Meeting, error)
	ListMeetings(ctx context.Context) ([]Meeting, error)
	ListAttendance(ctx context.Context, meetingID string) ([]Record, error)
	UpsertMember(ctx context.Context, m Member) error
	SetMemberStatus(ctx context.Context, uid string, status AccountStatus) error
}

// AccountStatusProvider reports whether a member may attend. Unknown members
// yield ErrNotFound.
type AccountStatusProvider interface {
	AccountStatus(ctx context.Context, uid string) (AccountStatus, error)
}

// CounterRetrier takes over a counter increment that failed after its
// attendance record was written.
type CounterRetrier interface {
	RetryCounter(ctx context.Context, meetingID, memberUID string) error
}
