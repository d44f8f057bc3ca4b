package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists meetings, members and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, status, qr_token, qr_expires_at, qr_duration, qr_generation`

// Ping verifies the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetMeetingSession loads the session fields of one meeting.
func (r *Repository) GetMeetingSession(ctx context.Context, meetingID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM meetings WHERE id = $1`, meetingID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// UpdateMeetingSession applies upd in a single statement.
func (r *Repository) UpdateMeetingSession(ctx context.Context, meetingID string, upd SessionUpdate) (Session, error) {
	var row *sql.Row
	if upd.Rotate {
		row = r.db.QueryRowContext(ctx, `
			UPDATE meetings SET qr_token = $2
			WHERE id = $1 AND status = 'active' AND ($3::bigint = 0 OR qr_generation = $3)
			RETURNING `+sessionColumns,
			meetingID, upd.Token, upd.IfGeneration)
	} else {
		var token any
		var expiresAt any
		if upd.Status == StatusActive {
			token = upd.Token
			if upd.ExpiresAt != nil {
				expiresAt = upd.ExpiresAt.UTC()
			}
		}
		row = r.db.QueryRowContext(ctx, `
			UPDATE meetings
			SET status = $2, qr_token = $3, qr_expires_at = $4,
				qr_duration = CASE WHEN $5::int > 0 THEN $5::int ELSE qr_duration END,
				qr_generation = qr_generation + 1
			WHERE id = $1 AND ($6::bigint = 0 OR qr_generation = $6)
			RETURNING `+sessionColumns,
			meetingID, string(upd.Status), token, expiresAt, upd.DurationMinutes, upd.IfGeneration)
	}

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, r.missOrStale(ctx, meetingID)
	}
	return sess, err
}

// missOrStale tells an unknown meeting from a lost conditional update.
func (r *Repository) missOrStale(ctx context.Context, meetingID string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM meetings WHERE id = $1)`, meetingID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleGeneration
}

// ListActiveSessions returns every session stored as active.
func (r *Repository) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM meetings WHERE status = 'active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, rows.Err()
}

// FindAttendance returns the member's record for the meeting, or nil.
func (r *Repository) FindAttendance(ctx context.Context, meetingID, memberUID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, member_uid, member_id, member_name, scanned_at, status
		FROM attendance
		WHERE meeting_id = $1 AND member_uid = $2
	`, meetingID, memberUID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateAttendance inserts rec. The (meeting_id, member_uid) unique key turns
// a concurrent duplicate into ErrDuplicate.
func (r *Repository) CreateAttendance(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, meeting_id, member_uid, member_id, member_name, scanned_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (meeting_id, member_uid) DO NOTHING
	`, rec.ID, rec.MeetingID, rec.MemberUID, rec.MemberID, rec.MemberName, rec.ScannedAt, rec.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// IncrementAttendanceCounter bumps the member's counter once per record: the
// record's counted flag and the counter move in one statement.
func (r *Repository) IncrementAttendanceCounter(ctx context.Context, meetingID, memberUID string) error {
	_, err := r.db.ExecContext(ctx, `
		WITH marked AS (
			UPDATE attendance SET counted = TRUE
			WHERE meeting_id = $1 AND member_uid = $2 AND counted = FALSE
			RETURNING member_uid
		)
		UPDATE members SET attendance_count = attendance_count + 1, updated_at = NOW()
		WHERE uid IN (SELECT member_uid FROM marked)
	`, meetingID, memberUID)
	return err
}

// GetMember returns a member profile by uid.
func (r *Repository) GetMember(ctx context.Context, uid string) (Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uid, member_id, name, surname, role, status, attendance_count
		FROM members WHERE uid = $1
	`, uid)
	var m Member
	var status string
	if err := row.Scan(&m.UID, &m.MemberID, &m.Name, &m.Surname, &m.Role, &status, &m.AttendanceCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	m.Status = AccountStatus(status)
	return m, nil
}

// UpsertMember creates or updates a member profile, keeping its counter.
func (r *Repository) UpsertMember(ctx context.Context, m Member) error {
	if m.Status == "" {
		m.Status = AccountActive
	}
	if m.Role == "" {
		m.Role = "member"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (uid, member_id, name, surname, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid) DO UPDATE SET
			member_id = EXCLUDED.member_id,
			name = EXCLUDED.name,
			surname = EXCLUDED.surname,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, m.UID, m.MemberID, m.Name, m.Surname, m.Role, string(m.Status))
	return err
}

// SetMemberStatus marks a member active or blocked.
func (r *Repository) SetMemberStatus(ctx context.Context, uid string, status AccountStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE members SET status = $2, updated_at = NOW() WHERE uid = $1`, uid, string(status))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMeeting inserts a new upcoming meeting.
func (r *Repository) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	m = normalizeMeeting(m, time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meetings (id, topic, description, meeting_date, start_time, end_time, location, gps_link, qr_duration, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.Topic, m.Description, m.Date, m.StartTime, m.EndTime, m.Location, m.GPSLink, m.DurationMinutes, string(m.Status), m.CreatedBy, m.CreatedAt)
	if err != nil {
		return Meeting{}, err
	}
	return m, nil
}

// ListMeetings returns all meetings, newest first.
func (r *Repository) ListMeetings(ctx context.Context) ([]Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, topic, description, meeting_date, start_time, end_time, location, gps_link, qr_duration, status, qr_expires_at, created_by, created_at
		FROM meetings
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Meeting
	for rows.Next() {
		var m Meeting
		var status string
		var expiresAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Topic, &m.Description, &m.Date, &m.StartTime, &m.EndTime, &m.Location, &m.GPSLink, &m.DurationMinutes, &status, &expiresAt, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = Status(status)
		if expiresAt.Valid {
			t := expiresAt.Time
			m.ExpiresAt = &t
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListAttendance returns a meeting's records in scan order.
func (r *Repository) ListAttendance(ctx context.Context, meetingID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meeting_id, member_uid, member_id, member_name, scanned_at, status
		FROM attendance
		WHERE meeting_id = $1
		ORDER BY scanned_at
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var status string
	var token sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&sess.MeetingID, &status, &token, &expiresAt, &sess.DurationMinutes, &sess.Generation); err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	sess.Token = token.String
	if expiresAt.Valid {
		t := expiresAt.Time
		sess.ExpiresAt = &t
	}
	return sess, nil
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.MeetingID, &rec.MemberUID, &rec.MemberID, &rec.MemberName, &rec.ScannedAt, &rec.Status)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
