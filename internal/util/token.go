package util //nolint:revive // package name util hosts small helpers shared by the auth adapters

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomToken returns a cryptographically secure URL-safe string of exactly n characters.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// 3 random bytes encode to 4 characters; round up so the encoding is never short.
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
