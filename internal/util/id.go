package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random 128-bit hex identifier, optionally prefixed
// ("note_ab12..."). Content ids use this form so the kind of a record is
// visible in logs and persisted documents.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewVisitorID returns an ephemeral visitor identity. Visitors have no
// account, so a random UUID is the whole identity.
func NewVisitorID() string {
	return "visitor_" + uuid.NewString()
}
