package attendance

import (
	"errors"
	"fmt"
)

// Scan and session failures surfaced to callers.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidToken     = errors.New("invalid or expired QR token")
	ErrSessionExpired   = errors.New("meeting QR has expired")
	ErrMemberBlocked    = errors.New("member is blocked from attending meetings")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidDuration  = errors.New("session duration out of range")
)

// Store-level conditions. They never leave the service.
var (
	ErrDuplicate       = errors.New("attendance already exists")
	ErrStaleGeneration = errors.New("session generation changed")
)

// Kind returns a stable machine-readable name for err, or "" when err is not
// one of the service errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrMemberBlocked):
		return "member_blocked"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return ""
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
