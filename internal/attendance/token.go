package attendance

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenRandomBytes = 32

// TokenSource produces QR tokens.
type TokenSource func() (string, error)

// NewToken returns 32 bytes from crypto/rand, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// tokensEqual compares a submitted token to the stored one. An empty stored
// token never matches.
func tokensEqual(stored, submitted string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
