package attendance

import (
	"time"
)

// Status is the lifecycle state of a meeting's QR session.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
)

// AccountStatus is the member account state as reported by the identity provider.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// DefaultDurationMinutes is the session lifetime used when neither the caller
// nor the meeting supplies one.
const DefaultDurationMinutes = 30

// Session is the part of a meeting record the QR protocol reads and writes.
// An empty Token and a nil ExpiresAt are the stored nulls.
type Session struct {
	MeetingID       string
	Status          Status
	Token           string
	ExpiresAt       *time.Time
	DurationMinutes int
	// Generation increases on every start, stop and expiry. Rotation keeps it,
	// so timer writes can be made conditional on the session they belong to.
	Generation int64
}

// Effective returns the session as readers must see it at now: a session whose
// expiry has passed is reported expired with no token, whatever is stored.
func (s Session) Effective(now time.Time) Session {
	if s.Status == StatusActive && (s.ExpiresAt == nil || now.After(*s.ExpiresAt)) {
		s.Status = StatusExpired
		s.Token = ""
		s.ExpiresAt = nil
	}
	return s
}

// Meeting is a full meeting record.
type Meeting struct {
	ID              string     `json:"id"`
	Topic           string     `json:"topic"`
	Description     string     `json:"description"`
	Date            time.Time  `json:"date"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	Location        string     `json:"location"`
	GPSLink         string     `json:"gps_link"`
	DurationMinutes int        `json:"qr_duration"`
	Status          Status     `json:"status"`
	ExpiresAt       *time.Time `json:"qr_expires_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Member is a member profile as held by the record store.
type Member struct {
	UID             string        `json:"uid"`
	MemberID        string        `json:"member_id"`
	Name            string        `json:"name"`
	Surname         string        `json:"surname"`
	Role            string        `json:"role"`
	Status          AccountStatus `json:"status"`
	AttendanceCount int           `json:"attendance_count"`
}

// FullName is the display name snapshotted into attendance records.
func (m Member) FullName() string {
	switch {
	case m.Name == "":
		return m.Surname
	case m.Surname == "":
		return m.Name
	}
	return m.Name + " " + m.Surname
}

// Record is one member's attendance at one meeting.
type Record struct {
	ID         string    `json:"id"`
	MeetingID  string    `json:"meeting_id"`
	MemberUID  string    `json:"member_uid"`
	MemberID   string    `json:"member_id"`
	MemberName string    `json:"member_name"`
	ScannedAt  time.Time `json:"scanned_at"`
	Status     string    `json:"status"`
}

// RecordStatusPresent is the only status this service writes.
const RecordStatusPresent = "present"

// SessionUpdate is an atomic partial update of a meeting's session fields.
//
// With Rotate set only Token is written, and only while the stored session is
// active. Otherwise Status, Token, ExpiresAt and (when non-zero)
// DurationMinutes are written together and the generation is incremented.
// A non-zero IfGeneration makes either form conditional on the stored
// generation.
type SessionUpdate struct {
	Status          Status
	Token           string
	ExpiresAt       *time.Time
	DurationMinutes int
	Rotate          bool
	IfGeneration    int64
}

// Outcome is a successful scan result.
type Outcome string

const (
	OutcomeRecorded      Outcome = "recorded"
	OutcomeAlreadyMarked Outcome = "already_marked"
)

// Ticket is what the QR screen displays: the current token and when the
// session ends.
type Ticket struct {
	MeetingID string    `json:"meeting_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Effective applies Session.Effective to the meeting's status fields.
func (m Meeting) Effective(now time.Time) Meeting {
	sess := Session{Status: m.Status, ExpiresAt: m.ExpiresAt}.Effective(now)
	m.Status = sess.Status
	m.ExpiresAt = sess.ExpiresAt
	return m
}
