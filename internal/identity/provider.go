package identity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"association/internal/attendance"
)

const keyPrefix = "association:member-status:"

// MemberLookup reads member profiles from the record store.
type MemberLookup interface {
	GetMember(ctx context.Context, uid string) (attendance.Member, error)
}

// Provider answers account status checks from the member profiles, caching
// answers in Redis for ttl. A nil client or zero ttl disables the cache.
type Provider struct {
	members MemberLookup
	cache   *redis.Client
	ttl     time.Duration
	log     *zap.Logger
}

// NewProvider creates a provider over members.
func NewProvider(members MemberLookup, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{members: members, cache: cache, ttl: ttl, log: logger.Named("identity")}
}

func (p *Provider) cached() bool {
	return p.cache != nil && p.ttl > 0
}

// AccountStatus returns whether uid is active or blocked. Unknown members
// yield attendance.ErrNotFound. Cache failures fall back to the store.
func (p *Provider) AccountStatus(ctx context.Context, uid string) (attendance.AccountStatus, error) {
	if p.cached() {
		val, err := p.cache.Get(ctx, keyPrefix+uid).Result()
		switch {
		case err == nil:
			return attendance.AccountStatus(val), nil
		case !errors.Is(err, redis.Nil):
			p.log.Warn("status cache read failed", zap.String("member_uid", uid), zap.Error(err))
		}
	}

	m, err := p.members.GetMember(ctx, uid)
	if err != nil {
		return "", err
	}
	status := m.Status
	if status == "" {
		status = attendance.AccountActive
	}

	if p.cached() {
		if err := p.cache.Set(ctx, keyPrefix+uid, string(status), p.ttl).Err(); err != nil {
			p.log.Warn("status cache write failed", zap.String("member_uid", uid), zap.Error(err))
		}
	}
	return status, nil
}

// Invalidate drops the cached status of uid, as after blocking a member.
func (p *Provider) Invalidate(ctx context.Context, uid string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Del(ctx, keyPrefix+uid).Err()
}
