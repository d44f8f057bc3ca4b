package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRotationInterval is how often an active session's token is replaced.
// Members are told the QR code refreshes every 30 seconds.
const DefaultRotationInterval = 30 * time.Second

// MaxDurationMinutes caps a session at one day.
const MaxDurationMinutes = 24 * 60

// retryEnqueueTimeout bounds handing a failed counter increment to the retrier
// on the request path.
const retryEnqueueTimeout = 2 * time.Second

// Service runs the QR attendance protocol: it starts, rotates, expires and
// stops sessions, and validates and records scans.
type Service struct {
	store           Store
	accounts        AccountStatusProvider
	timers          *Registry
	newToken        TokenSource
	now             func() time.Time
	interval        time.Duration
	defaultDuration int
	retrier         CounterRetrier
	retryTimeout    time.Duration
	metrics         *Metrics
	log             *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenSource replaces NewToken.
func WithTokenSource(src TokenSource) Option {
	return func(s *Service) { s.newToken = src }
}

// WithRotationInterval sets the token rotation period.
func WithRotationInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDefaultDuration sets the session lifetime used when neither the start
// request nor the meeting carries one.
func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

// WithCounterRetrier hands failed counter increments to r.
func WithCounterRetrier(r CounterRetrier) Option {
	return func(s *Service) { s.retrier = r }
}

// WithMetrics records protocol metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a service over store, checking member accounts with accounts.
func NewService(store Store, accounts AccountStatusProvider, opts ...Option) *Service {
	s := &Service{
		store:           store,
		accounts:        accounts,
		timers:          NewRegistry(),
		newToken:        NewToken,
		now:             time.Now,
		interval:        DefaultRotationInterval,
		defaultDuration: DefaultDurationMinutes,
		retryTimeout:    retryEnqueueTimeout,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("attendance")
	return s
}

// RotationInterval returns the token rotation period.
func (s *Service) RotationInterval() time.Duration { return s.interval }

// Start opens (or reopens) the QR session of a meeting with a fresh token and
// an expiry durationMinutes from now, and starts its rotation timer.
// A non-positive durationMinutes uses the meeting's configured duration; one
// above MaxDurationMinutes fails with ErrInvalidDuration.
func (s *Service) Start(ctx context.Context, meetingID string, durationMinutes int) (Ticket, error) {
	if durationMinutes > MaxDurationMinutes {
		return Ticket{}, ErrInvalidDuration
	}
	if durationMinutes <= 0 {
		sess, err := s.store.GetMeetingSession(ctx, meetingID)
		if err != nil {
			return Ticket{}, storeErr("load session", err)
		}
		durationMinutes = sess.DurationMinutes
		if durationMinutes <= 0 {
			durationMinutes = s.defaultDuration
		}
	}

	token, err := s.newToken()
	if err != nil {
		return Ticket{}, err
	}
	expiresAt := s.now().Add(time.Duration(durationMinutes) * time.Minute)

	sess, err := s.store.UpdateMeetingSession(ctx, meetingID, SessionUpdate{
		Status:          StatusActive,
		Token:           token,
		ExpiresAt:       &expiresAt,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return Ticket{}, storeErr("start session", err)
	}

	s.launch(sess)
	s.metrics.sessionStarted()
	s.log.Info("qr session started",
		zap.String("meeting_id", meetingID),
		zap.Time("expires_at", expiresAt),
		zap.Int("duration_minutes", durationMinutes),
		zap.Int64("generation", sess.Generation),
	)
	return Ticket{MeetingID: meetingID, Token: token, ExpiresAt: expiresAt}, nil
}

// Stop cancels the meeting's rotation timer and expires its session. Stopping
// an already expired session re-asserts the terminal state.
func (s *Service) Stop(ctx context.Context, meetingID string) error {
	s.timers.Cancel(meetingID)

	sess, err := s.store.UpdateMeetingSession(ctx, meetingID, SessionUpdate{Status: StatusExpired})
	if err != nil {
		return storeErr("stop session", err)
	}
	s.metrics.sessionExpired("stopped")
	s.log.Info("qr session stopped",
		zap.String("meeting_id", meetingID),
		zap.Int64("generation", sess.Generation),
	)
	return nil
}

// Refresh rotates the token of an active session immediately, outside the
// timer's cadence.
func (s *Service) Refresh(ctx context.Context, meetingID string) (Ticket, error) {
	sess, err := s.store.GetMeetingSession(ctx, meetingID)
	if err != nil {
		return Ticket{}, storeErr("load session", err)
	}
	if sess.Effective(s.now()).Status != StatusActive {
		return Ticket{}, ErrSessionExpired
	}

	token, err := s.newToken()
	if err != nil {
		return Ticket{}, err
	}
	if _, err := s.store.UpdateMeetingSession(ctx, meetingID, SessionUpdate{
		Rotate:       true,
		Token:        token,
		IfGeneration: sess.Generation,
	}); err != nil {
		if errors.Is(err, ErrStaleGeneration) {
			return Ticket{}, ErrSessionExpired
		}
		return Ticket{}, storeErr("rotate token", err)
	}
	s.metrics.rotated()
	return Ticket{MeetingID: meetingID, Token: token, ExpiresAt: *sess.ExpiresAt}, nil
}

// Current returns the token an active session displays right now.
func (s *Service) Current(ctx context.Context, meetingID string) (Ticket, error) {
	sess, err := s.Session(ctx, meetingID)
	if err != nil {
		return Ticket{}, err
	}
	if sess.Status != StatusActive {
		return Ticket{}, ErrSessionExpired
	}
	return Ticket{MeetingID: meetingID, Token: sess.Token, ExpiresAt: *sess.ExpiresAt}, nil
}

// Session returns the meeting's session as readers see it now.
func (s *Service) Session(ctx context.Context, meetingID string) (Session, error) {
	sess, err := s.store.GetMeetingSession(ctx, meetingID)
	if err != nil {
		return Session{}, storeErr("load session", err)
	}
	return sess.Effective(s.now()), nil
}

// RecordAttendance validates a scan of token by memberUID and records the
// member as present. Checks run in order and stop at the first failure:
// meeting exists, token matches, session open, member not blocked, no
// existing record. No failure leaves anything written.
func (s *Service) RecordAttendance(ctx context.Context, meetingID, memberUID, token string) (Outcome, error) {
	outcome, err := s.recordAttendance(ctx, meetingID, memberUID, token)
	if err != nil {
		kind := Kind(err)
		if kind == "" {
			kind = "error"
		}
		s.metrics.scan(kind)
		return "", err
	}
	s.metrics.scan(string(outcome))
	return outcome, nil
}

func (s *Service) recordAttendance(ctx context.Context, meetingID, memberUID, token string) (Outcome, error) {
	sess, err := s.store.GetMeetingSession(ctx, meetingID)
	if err != nil {
		return "", storeErr("load session", err)
	}

	if !tokensEqual(sess.Token, token) {
		return "", ErrInvalidToken
	}

	now := s.now()
	if sess.Status != StatusActive || sess.ExpiresAt == nil || now.After(*sess.ExpiresAt) {
		return "", ErrSessionExpired
	}

	status, err := s.accounts.AccountStatus(ctx, memberUID)
	if err != nil {
		return "", storeErr("load account status", err)
	}
	if status == AccountBlocked {
		return "", ErrMemberBlocked
	}

	existing, err := s.store.FindAttendance(ctx, meetingID, memberUID)
	if err != nil {
		return "", storeErr("find attendance", err)
	}
	if existing != nil {
		return OutcomeAlreadyMarked, nil
	}

	member, err := s.store.GetMember(ctx, memberUID)
	if err != nil {
		return "", storeErr("load member", err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		MeetingID:  meetingID,
		MemberUID:  memberUID,
		MemberID:   member.MemberID,
		MemberName: member.FullName(),
		ScannedAt:  now.UTC(),
		Status:     RecordStatusPresent,
	}
	if err := s.store.CreateAttendance(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return OutcomeAlreadyMarked, nil
		}
		return "", storeErr("create attendance", err)
	}

	if err := s.store.IncrementAttendanceCounter(ctx, meetingID, memberUID); err != nil {
		s.metrics.counterFailed()
		s.log.Warn("attendance counter increment failed",
			zap.String("meeting_id", meetingID),
			zap.String("member_uid", memberUID),
			zap.Error(err),
		)
		if s.retrier != nil {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.retryTimeout)
			rerr := s.retrier.RetryCounter(rctx, meetingID, memberUID)
			cancel()
			if rerr != nil {
				s.log.Error("attendance counter retry enqueue failed",
					zap.String("meeting_id", meetingID),
					zap.String("member_uid", memberUID),
					zap.Error(rerr),
				)
			}
		}
	}

	s.log.Info("attendance recorded",
		zap.String("meeting_id", meetingID),
		zap.String("member_uid", memberUID),
	)
	return OutcomeRecorded, nil
}

// Resume restarts timers for sessions the store still holds as active, as
// after a process restart, and expires the ones already past their expiry.
func (s *Service) Resume(ctx context.Context) (int, error) {
	sessions, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, storeErr("list active sessions", err)
	}
	resumed := 0
	now := s.now()
	for _, sess := range sessions {
		if sess.ExpiresAt == nil || now.After(*sess.ExpiresAt) {
			s.expire(ctx, sess.MeetingID, sess.Generation, "timeout")
			continue
		}
		if s.launch(sess) {
			resumed++
		}
	}
	s.log.Info("qr sessions resumed", zap.Int("resumed", resumed), zap.Int("active", len(sessions)))
	return resumed, nil
}

// Close cancels every rotation timer and waits for them to return.
func (s *Service) Close() {
	s.timers.Close()
}

func (s *Service) launch(sess Session) bool {
	meetingID, generation := sess.MeetingID, sess.Generation
	expiresAt := *sess.ExpiresAt
	return s.timers.Launch(meetingID, generation, func(ctx context.Context) {
		s.metrics.timers(1)
		defer s.metrics.timers(-1)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		deadline := time.NewTimer(expiresAt.Sub(s.now()))
		defer deadline.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				if s.expire(ctx, meetingID, generation, "timeout") {
					return
				}
			case <-ticker.C:
				if !s.tick(ctx, meetingID, generation, expiresAt) {
					return
				}
			}
		}
	})
}

// tick rotates the token, or expires the session once its expiry has passed.
// It reports whether the timer should keep running.
func (s *Service) tick(ctx context.Context, meetingID string, generation int64, expiresAt time.Time) bool {
	if s.now().After(expiresAt) {
		return !s.expire(ctx, meetingID, generation, "timeout")
	}

	token, err := s.newToken()
	if err != nil {
		s.log.Error("token generation failed", zap.String("meeting_id", meetingID), zap.Error(err))
		return true
	}
	_, err = s.store.UpdateMeetingSession(ctx, meetingID, SessionUpdate{
		Rotate:       true,
		Token:        token,
		IfGeneration: generation,
	})
	switch {
	case err == nil:
		s.metrics.rotated()
		s.log.Debug("qr token rotated", zap.String("meeting_id", meetingID), zap.Int64("generation", generation))
		return true
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, ErrNotFound):
		s.log.Info("qr session superseded, timer exiting",
			zap.String("meeting_id", meetingID),
			zap.Int64("generation", generation),
		)
		return false
	case ctx.Err() != nil:
		return false
	default:
		s.log.Warn("qr token rotation failed", zap.String("meeting_id", meetingID), zap.Error(err))
		return true
	}
}

// expire writes the terminal state for generation. It reports whether the
// session is finished with, which is false only when the write should be
// retried.
func (s *Service) expire(ctx context.Context, meetingID string, generation int64, reason string) bool {
	_, err := s.store.UpdateMeetingSession(ctx, meetingID, SessionUpdate{
		Status:       StatusExpired,
		IfGeneration: generation,
	})
	switch {
	case err == nil:
		s.metrics.sessionExpired(reason)
		s.log.Info("qr session expired", zap.String("meeting_id", meetingID), zap.String("reason", reason))
		return true
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, ErrNotFound), ctx.Err() != nil:
		return true
	default:
		s.log.Warn("qr session expiry failed", zap.String("meeting_id", meetingID), zap.Error(err))
		return false
	}
}

func storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return unavailable(op, err)
}
