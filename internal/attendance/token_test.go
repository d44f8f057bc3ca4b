package attendance

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	_, err = hex.DecodeString(a)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokensEqual(t *testing.T) {
	assert.True(t, tokensEqual("abc", "abc"))
	assert.False(t, tokensEqual("abc", "abd"))
	assert.False(t, tokensEqual("abc", "ab"))
	assert.False(t, tokensEqual("", ""))
	assert.False(t, tokensEqual("", "abc"))
}

func TestEffective(t *testing.T) {
	clock := newFakeClock()
	exp := clock.Now().Add(time.Minute)
	sess := Session{Status: StatusActive, Token: "t", ExpiresAt: &exp}

	assert.Equal(t, sess, sess.Effective(clock.Now()))
	assert.Equal(t, sess, sess.Effective(exp), "the expiry instant itself is still open")

	view := sess.Effective(exp.Add(time.Nanosecond))
	assert.Equal(t, StatusExpired, view.Status)
	assert.Empty(t, view.Token)
	assert.Nil(t, view.ExpiresAt)

	upcoming := Session{Status: StatusUpcoming}
	assert.Equal(t, upcoming, upcoming.Effective(clock.Now()))
}
