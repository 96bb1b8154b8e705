package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// refreshTokenBytes is the amount of entropy in an opaque refresh token.
const refreshTokenBytes = 48 // 48 bytes -> 96 hex chars

// NewRefreshToken returns a cryptographically secure random opaque token.
// The token carries no data; its meaning lives entirely in the session
// cache.
func NewRefreshToken() (string, error) {
	return randomHex(refreshTokenBytes)
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data. If the random number generator
// fails, an error is returned.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
