// Package primitives holds the byte-level building blocks the crypto layers
// are written against: base64url and UTF-8 codecs, a CSPRNG, and a
// constant-time comparison.
package primitives

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// ToBase64 encodes arbitrary bytes with the URL-safe alphabet, padding
// stripped.
func ToBase64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// FromBase64 decodes a base64url string. Padding is tolerated so values that
// passed through a padding-adding encoder still round-trip.
func FromBase64(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	b, padErr := base64.URLEncoding.DecodeString(s)
	if padErr == nil {
		return b, nil
	}
	return nil, fmt.Errorf("decode base64: %w", err)
}

// EncodeText returns the UTF-8 bytes of s.
func EncodeText(s string) []byte {
	return []byte(s)
}

// DecodeText interprets b as UTF-8 text.
func DecodeText(b []byte) string {
	return string(b)
}

// RandomBytes returns n bytes from the platform CSPRNG. It fails loudly
// rather than degrading to a weak source.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("secure random source unavailable: %w", err)
	}
	return b, nil
}

// ConstantTimeEqual compares two byte slices in time independent of where
// they first differ. A length mismatch returns false immediately; lengths are
// not secret. Any secret-derived comparison (MAC or token check) must go
// through this, never bytes.Equal.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
