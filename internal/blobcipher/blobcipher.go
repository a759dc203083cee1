// Package blobcipher authenticates and encrypts opaque byte payloads under a
// single 256-bit symmetric key. Blobs are self-describing: the Alg tag lets a
// reader dispatch on algorithm, so a future cipher can be introduced without
// invalidating stored blobs.
package blobcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hari2309s/meerkat-sub001/internal/primitives"
)

// AlgAESGCM is the only algorithm currently written. Readers reject anything
// else rather than guessing.
const AlgAESGCM = "A256GCM"

const (
	keySize = 32
	ivSize  = 12
)

var (
	// ErrDecryptFailed means ciphertext authentication failed: wrong key,
	// corrupted ciphertext, or tampered IV. Distinct from ErrMalformedBlob so
	// callers never confuse "wrong key" with "not a blob".
	ErrDecryptFailed = errors.New("blob decryption failed: authentication error")

	// ErrMalformedBlob means the blob is structurally invalid before any key
	// is applied: unknown algorithm, wrong IV length, bad key size.
	ErrMalformedBlob = errors.New("malformed encrypted blob")
)

// EncryptedBlob is the stored form of an authenticated ciphertext.
type EncryptedBlob struct {
	Alg        string `json:"alg"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random
// 96-bit IV. The IV is never reused for the same key; reuse would break both
// confidentiality and authenticity for this mode.
func Encrypt(key, plaintext []byte) (EncryptedBlob, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return EncryptedBlob{}, err
	}
	iv, err := primitives.RandomBytes(ivSize)
	if err != nil {
		return EncryptedBlob{}, err
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return EncryptedBlob{
		Alg:        AlgAESGCM,
		IV:         primitives.ToBase64(iv),
		Ciphertext: primitives.ToBase64(ciphertext),
	}, nil
}

// Decrypt verifies and opens blob. Authentication failure returns
// ErrDecryptFailed and never partial plaintext.
func Decrypt(key []byte, blob EncryptedBlob) ([]byte, error) {
	if blob.Alg != AlgAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedBlob, blob.Alg)
	}
	iv, err := primitives.FromBase64(blob.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedBlob, err)
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrMalformedBlob, len(iv))
	}
	ciphertext, err := primitives.FromBase64(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedBlob, err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptString seals a UTF-8 string.
func EncryptString(key []byte, s string) (EncryptedBlob, error) {
	return Encrypt(key, primitives.EncodeText(s))
}

// DecryptString opens a blob produced by EncryptString.
func DecryptString(key []byte, blob EncryptedBlob) (string, error) {
	b, err := Decrypt(key, blob)
	if err != nil {
		return "", err
	}
	return primitives.DecodeText(b), nil
}

// EncryptJSON seals the JSON encoding of v.
func EncryptJSON(key []byte, v any) (EncryptedBlob, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Encrypt(key, b)
}

// DecryptJSON opens a blob produced by EncryptJSON and unmarshals it into
// out.
func DecryptJSON(key []byte, blob EncryptedBlob, out any) error {
	b, err := Decrypt(key, blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key length %d, want %d", ErrMalformedBlob, len(key), keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
