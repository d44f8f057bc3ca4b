package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process record store for development and tests.
type MemoryStore struct {
	mu         sync.Mutex
	meetings   map[string]*memMeeting
	members    map[string]Member
	attendance map[attendanceKey]*memRecord
}

type memMeeting struct {
	Meeting
	token      string
	generation int64
}

type memRecord struct {
	Record
	counted bool
}

type attendanceKey struct {
	meetingID string
	memberUID string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings:   make(map[string]*memMeeting),
		members:    make(map[string]Member),
		attendance: make(map[attendanceKey]*memRecord),
	}
}

func (s *MemoryStore) GetMeetingSession(_ context.Context, meetingID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return m.session(), nil
}

func (s *MemoryStore) UpdateMeetingSession(_ context.Context, meetingID string, upd SessionUpdate) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if upd.IfGeneration != 0 && m.generation != upd.IfGeneration {
		return Session{}, ErrStaleGeneration
	}
	if upd.Rotate {
		if m.Status != StatusActive {
			return Session{}, ErrStaleGeneration
		}
		m.token = upd.Token
		return m.session(), nil
	}

	m.Status = upd.Status
	if upd.Status == StatusActive {
		m.token = upd.Token
		m.ExpiresAt = copyTime(upd.ExpiresAt)
	} else {
		m.token = ""
		m.ExpiresAt = nil
	}
	if upd.DurationMinutes > 0 {
		m.DurationMinutes = upd.DurationMinutes
	}
	m.generation++
	return m.session(), nil
}

func (s *MemoryStore) ListActiveSessions(_ context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, m := range s.meetings {
		if m.Status == StatusActive {
			out = append(out, m.session())
		}
	}
	return out, nil
}

func (s *MemoryStore) FindAttendance(_ context.Context, meetingID, memberUID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.attendance[attendanceKey{meetingID, memberUID}]
	if !ok {
		return nil, nil
	}
	out := rec.Record
	return &out, nil
}

func (s *MemoryStore) CreateAttendance(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey{rec.MeetingID, rec.MemberUID}
	if _, ok := s.attendance[key]; ok {
		return ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.attendance[key] = &memRecord{Record: rec}
	return nil
}

func (s *MemoryStore) IncrementAttendanceCounter(_ context.Context, meetingID, memberUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.attendance[attendanceKey{meetingID, memberUID}]
	if !ok || rec.counted {
		return nil
	}
	m, ok := s.members[memberUID]
	if !ok {
		return ErrNotFound
	}
	m.AttendanceCount++
	s.members[memberUID] = m
	rec.counted = true
	return nil
}

func (s *MemoryStore) GetMember(_ context.Context, uid string) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[uid]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

// AccountStatus lets the store act as its own identity provider.
func (s *MemoryStore) AccountStatus(ctx context.Context, uid string) (AccountStatus, error) {
	m, err := s.GetMember(ctx, uid)
	if err != nil {
		return "", err
	}
	return m.Status, nil
}

func (s *MemoryStore) CreateMeeting(_ context.Context, m Meeting) (Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m = normalizeMeeting(m, time.Now())
	s.meetings[m.ID] = &memMeeting{Meeting: m}
	return m, nil
}

func (s *MemoryStore) ListMeetings(_ context.Context) ([]Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m.Meeting)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListAttendance(_ context.Context, meetingID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for key, rec := range s.attendance {
		if key.meetingID == meetingID {
			out = append(out, rec.Record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScannedAt.Before(out[j].ScannedAt) })
	return out, nil
}

func (s *MemoryStore) UpsertMember(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.members[m.UID]; ok {
		m.AttendanceCount = prev.AttendanceCount
	}
	if m.Status == "" {
		m.Status = AccountActive
	}
	if m.Role == "" {
		m.Role = "member"
	}
	s.members[m.UID] = m
	return nil
}

func (s *MemoryStore) SetMemberStatus(_ context.Context, uid string, status AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[uid]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	s.members[uid] = m
	return nil
}

func (m *memMeeting) session() Session {
	return Session{
		MeetingID:       m.ID,
		Status:          m.Status,
		Token:           m.token,
		ExpiresAt:       copyTime(m.ExpiresAt),
		DurationMinutes: m.DurationMinutes,
		Generation:      m.generation,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// normalizeMeeting fills the defaults every store applies on create.
func normalizeMeeting(m Meeting, now time.Time) Meeting {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.DurationMinutes <= 0 {
		m.DurationMinutes = DefaultDurationMinutes
	}
	m.Status = StatusUpcoming
	m.ExpiresAt = nil
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
	return m
}
