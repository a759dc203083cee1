// Package bundle seals JSON payloads, typically a subset of namespace keys,
// to a recipient's public key. This is the only mechanism by which key
// material crosses from an owner's device to a visitor's device: the bundle
// is self-contained and needs no pre-shared secret or account to open.
package bundle

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/hari2309s/meerkat-sub001/internal/primitives"
)

// AlgBox identifies the only supported sealing algorithm: X25519 key
// agreement with XSalsa20-Poly1305 authenticated encryption.
const AlgBox = "X25519-XSalsa20-Poly1305"

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrDecryptFailed means the MAC did not verify: wrong secret key, wrong
	// sender key, or tampered ciphertext.
	ErrDecryptFailed = errors.New("bundle decryption failed: authentication error")

	// ErrMalformedBundle means the bundle is structurally invalid before any
	// key is applied.
	ErrMalformedBundle = errors.New("malformed encrypted bundle")
)

// KeyPair is a long-lived X25519 identity belonging to a den owner or a
// visitor.
type KeyPair struct {
	PublicKey *[keySize]byte
	SecretKey *[keySize]byte
}

// EncryptedBundle is the sealed wire form. SenderPublicKey is the ephemeral
// (or, for authenticated sealing, long-term) public key the recipient needs
// for the Diffie-Hellman step.
type EncryptedBundle struct {
	Alg             string `json:"alg"`
	SenderPublicKey string `json:"senderPublicKey"`
	Nonce           string `json:"nonce"`
	Ciphertext      string `json:"ciphertext"`
}

// GenerateKeyPair produces a fresh X25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{PublicKey: pub, SecretKey: sec}, nil
}

// Seal encrypts the JSON encoding of payload to recipientPub. When senderSec
// is nil a fresh ephemeral key pair is generated for this one bundle, so
// compromise of one bundle's ephemeral secret exposes no other bundle. When
// senderSec is supplied the sender's long-term key is used for the
// Diffie-Hellman step (authenticated sealing); the nonce is fresh either way.
func Seal(payload any, recipientPub *[keySize]byte, senderSec *[keySize]byte) (EncryptedBundle, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return EncryptedBundle{}, fmt.Errorf("marshal payload: %w", err)
	}

	senderPub := new([keySize]byte)
	if senderSec == nil {
		ephPub, ephSec, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return EncryptedBundle{}, fmt.Errorf("generate ephemeral key: %w", err)
		}
		senderPub, senderSec = ephPub, ephSec
	} else {
		// Recover the public half so the recipient can derive the shared
		// secret unilaterally.
		curve25519.ScalarBaseMult(senderPub, senderSec)
	}

	nonceBytes, err := primitives.RandomBytes(nonceSize)
	if err != nil {
		return EncryptedBundle{}, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], nonceBytes)

	ciphertext := box.Seal(nil, plaintext, &nonce, recipientPub, senderSec)
	return EncryptedBundle{
		Alg:             AlgBox,
		SenderPublicKey: primitives.ToBase64(senderPub[:]),
		Nonce:           primitives.ToBase64(nonce[:]),
		Ciphertext:      primitives.ToBase64(ciphertext),
	}, nil
}

// Open is the exact inverse of Seal. A structural problem (unknown alg, bad
// lengths) surfaces as ErrMalformedBundle; a MAC failure (wrong key,
// tampering) surfaces as ErrDecryptFailed. The two are never collapsed.
func Open(b EncryptedBundle, recipientSec *[keySize]byte) (json.RawMessage, error) {
	if b.Alg != AlgBox {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedBundle, b.Alg)
	}
	senderPubBytes, err := primitives.FromBase64(b.SenderPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender public key: %v", ErrMalformedBundle, err)
	}
	if len(senderPubBytes) != keySize {
		return nil, fmt.Errorf("%w: sender public key length %d", ErrMalformedBundle, len(senderPubBytes))
	}
	nonceBytes, err := primitives.FromBase64(b.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformedBundle, err)
	}
	if len(nonceBytes) != nonceSize {
		return nil, fmt.Errorf("%w: nonce length %d", ErrMalformedBundle, len(nonceBytes))
	}
	ciphertext, err := primitives.FromBase64(b.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedBundle, err)
	}

	var senderPub [keySize]byte
	copy(senderPub[:], senderPubBytes)
	var nonce [nonceSize]byte
	copy(nonce[:], nonceBytes)

	plaintext, ok := box.Open(nil, ciphertext, &nonce, &senderPub, recipientSec)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return json.RawMessage(plaintext), nil
}

// OpenJSON opens b and unmarshals the payload into out.
func OpenJSON(b EncryptedBundle, recipientSec *[keySize]byte, out any) error {
	raw, err := Open(b, recipientSec)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// PublicKeyFromBase64 decodes a transported public key.
func PublicKeyFromBase64(s string) (*[keySize]byte, error) {
	raw, err := primitives.FromBase64(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("public key length %d, want %d", len(raw), keySize)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}
