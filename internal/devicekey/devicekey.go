// Package devicekey derives the symmetric key that encrypts the private
// document at rest on a device.
package devicekey

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/hari2309s/meerkat-sub001/internal/primitives"
)

// Argon2id parameters. Intentionally slow: the input secret is low-entropy
// (a passphrase or PIN), so the derivation has to be memory- and CPU-hard.
const (
	saltSize    = 16
	keySize     = 32
	argonTime   = 1
	argonMemory = 64 * 1024 // KiB
	argonLanes  = 4
)

// ErrEmptySecret is returned when the device secret is empty.
var ErrEmptySecret = errors.New("device secret must not be empty")

// DeviceKey is a derived key together with the salt that reproduces it.
// Losing the salt is equivalent to losing the key.
type DeviceKey struct {
	Key  []byte
	Salt []byte
}

// Derive derives a 256-bit device key from secret and salt. A nil salt means
// first-time derivation: a fresh 16-byte salt is generated and returned for
// the caller to persist. Every later derivation for the same device must pass
// that salt back to reproduce the same key.
func Derive(secret string, salt []byte) (DeviceKey, error) {
	if secret == "" {
		return DeviceKey{}, ErrEmptySecret
	}
	if salt == nil {
		fresh, err := primitives.RandomBytes(saltSize)
		if err != nil {
			return DeviceKey{}, err
		}
		salt = fresh
	}
	if len(salt) != saltSize {
		return DeviceKey{}, fmt.Errorf("salt length %d, want %d", len(salt), saltSize)
	}
	key := argon2.IDKey(primitives.EncodeText(secret), salt, argonTime, argonMemory, argonLanes, keySize)
	return DeviceKey{Key: key, Salt: salt}, nil
}
