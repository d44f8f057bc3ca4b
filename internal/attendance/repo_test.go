package attendance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{"id", "status", "qr_token", "qr_expires_at", "qr_duration", "qr_generation"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRepository(db), mock
}

func TestRepository_GetMeetingSession(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	exp := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, status, qr_token, qr_expires_at, qr_duration, qr_generation FROM meetings WHERE id`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("m1", "active", "tok", exp, 30, int64(4)))

	sess, err := repo.GetMeetingSession(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, "tok", sess.Token)
	require.NotNil(t, sess.ExpiresAt)
	assert.True(t, exp.Equal(*sess.ExpiresAt))
	assert.Equal(t, int64(4), sess.Generation)

	mock.ExpectQuery(`FROM meetings WHERE id`).
		WithArgs("m2").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("m2", "expired", nil, nil, 30, int64(5)))
	sess, err = repo.GetMeetingSession(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, sess.Token)
	assert.Nil(t, sess.ExpiresAt)

	mock.ExpectQuery(`FROM meetings WHERE id`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetMeetingSession(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateMeetingSession(t *testing.T) {
	ctx := context.Background()
	exp := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)

	t.Run("start", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE meetings\s+SET status = \$2, qr_token = \$3, qr_expires_at = \$4`).
			WithArgs("m1", "active", "tok", exp, 10, int64(0)).
			WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("m1", "active", "tok", exp, 10, int64(2)))

		sess, err := repo.UpdateMeetingSession(ctx, "m1", SessionUpdate{
			Status: StatusActive, Token: "tok", ExpiresAt: &exp, DurationMinutes: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), sess.Generation)
	})

	t.Run("expire clears token and expiry", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE meetings\s+SET status`).
			WithArgs("m1", "expired", nil, nil, 0, int64(2)).
			WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("m1", "expired", nil, nil, 10, int64(3)))

		sess, err := repo.UpdateMeetingSession(ctx, "m1", SessionUpdate{
			Status: StatusExpired, Token: "ignored", ExpiresAt: &exp, IfGeneration: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, sess.Status)
	})

	t.Run("rotate loses to a newer generation", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE meetings SET qr_token = \$2\s+WHERE id = \$1 AND status = 'active'`).
			WithArgs("m1", "tok-2", int64(2)).
			WillReturnRows(sqlmock.NewRows(sessionCols))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.UpdateMeetingSession(ctx, "m1", SessionUpdate{Rotate: true, Token: "tok-2", IfGeneration: 2})
		assert.ErrorIs(t, err, ErrStaleGeneration)
	})

	t.Run("unknown meeting", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE meetings`).WillReturnRows(sqlmock.NewRows(sessionCols))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.UpdateMeetingSession(ctx, "ghost", SessionUpdate{Status: StatusExpired})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepository_CreateAttendance(t *testing.T) {
	ctx := context.Background()
	rec := Record{
		ID: "r1", MeetingID: "m1", MemberUID: "u1", MemberID: "M-001",
		MemberName: "Ada Lovelace", ScannedAt: time.Now().UTC(), Status: RecordStatusPresent,
	}
	insert := `INSERT INTO attendance .* ON CONFLICT \(meeting_id, member_uid\) DO NOTHING`

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(insert).
			WithArgs("r1", "m1", "u1", "M-001", "Ada Lovelace", sqlmock.AnyArg(), "present").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.CreateAttendance(ctx, rec))
	})

	t.Run("conflict", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.CreateAttendance(ctx, rec), ErrDuplicate)
	})

	t.Run("unique violation", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(insert).WillReturnError(&pgconn.PgError{Code: "23505"})
		assert.ErrorIs(t, repo.CreateAttendance(ctx, rec), ErrDuplicate)
	})
}

func TestRepository_FindAttendance(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	cols := []string{"id", "meeting_id", "member_uid", "member_id", "member_name", "scanned_at", "status"}

	mock.ExpectQuery(`FROM attendance\s+WHERE meeting_id = \$1 AND member_uid = \$2`).
		WithArgs("m1", "u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "m1", "u1", "M-001", "Ada", time.Now(), "present"))
	rec, err := repo.FindAttendance(ctx, "m1", "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "r1", rec.ID)

	mock.ExpectQuery(`FROM attendance`).WithArgs("m1", "u2").WillReturnRows(sqlmock.NewRows(cols))
	rec, err = repo.FindAttendance(ctx, "m1", "u2")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepository_IncrementAttendanceCounter(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`WITH marked AS \(\s+UPDATE attendance SET counted = TRUE`).
		WithArgs("m1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.IncrementAttendanceCounter(context.Background(), "m1", "u1"))
}

func TestRepository_Members(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT uid, member_id, name, surname, role, status, attendance_count`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "member_id", "name", "surname", "role", "status", "attendance_count"}).
			AddRow("u1", "M-001", "Ada", "Lovelace", "member", "blocked", 7))
	m, err := repo.GetMember(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, AccountBlocked, m.Status)
	assert.Equal(t, 7, m.AttendanceCount)

	mock.ExpectQuery(`FROM members WHERE uid`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetMember(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(`INSERT INTO members .* ON CONFLICT \(uid\) DO UPDATE`).
		WithArgs("u2", "M-002", "Alan", "", "member", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertMember(ctx, Member{UID: "u2", MemberID: "M-002", Name: "Alan"}))

	mock.ExpectExec(`UPDATE members SET status`).
		WithArgs("ghost", "blocked").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetMemberStatus(ctx, "ghost", AccountBlocked), ErrNotFound)
}

func TestRepository_CreateMeeting(t *testing.T) {
	repo, mock := newMockRepo(t)
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO meetings`).
		WithArgs(sqlmock.AnyArg(), "Assembly", "", date, "18:00", "", "", "", DefaultDurationMinutes, "upcoming", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := repo.CreateMeeting(context.Background(), Meeting{Topic: "Assembly", Date: date, StartTime: "18:00", CreatedBy: "admin-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, StatusUpcoming, m.Status)
	assert.Equal(t, DefaultDurationMinutes, m.DurationMinutes)
}
