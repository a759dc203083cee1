// Package peersync packages shared-document ops for transport between
// replicas. A payload carries the ops of exactly one namespace, encrypted
// under that namespace's key, so a peer holding only the dropbox key can
// relay or open dropbox traffic and nothing else.
package peersync

import (
	"errors"
	"fmt"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// ErrNamespaceMismatch is returned when a payload's ops do not all belong to
// the namespace the payload claims.
var ErrNamespaceMismatch = errors.New("op namespace does not match payload namespace")

// Payload is the wire form of one namespace's op batch. The namespace label
// travels in the clear so the receiver can pick the right key; the ops only
// inside the blob.
type Payload struct {
	Namespace string                   `json:"namespace"`
	Blob      blobcipher.EncryptedBlob `json:"blob"`
}

// Encode encrypts ops under the namespace key. Every op must belong to
// namespace; mixing namespaces into one payload would let a single key
// decrypt traffic the grant never covered.
func Encode(key []byte, namespace string, ops []crdt.Op) (Payload, error) {
	if !nskeys.Known(namespace) {
		return Payload{}, fmt.Errorf("%w: %q", nskeys.ErrUnknownNamespace, namespace)
	}
	for _, op := range ops {
		if op.Ns != namespace {
			return Payload{}, fmt.Errorf("%w: op for %q in %q payload", ErrNamespaceMismatch, op.Ns, namespace)
		}
	}
	blob, err := blobcipher.EncryptJSON(key, ops)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Namespace: namespace, Blob: blob}, nil
}

// Decode decrypts a payload and returns its ops. The cleartext namespace
// label is untrusted input: every decrypted op is re-checked against it, so a
// relabeled payload cannot smuggle ops into a namespace the sender had no key
// for.
func Decode(key []byte, p Payload) ([]crdt.Op, error) {
	if !nskeys.Known(p.Namespace) {
		return nil, fmt.Errorf("%w: %q", nskeys.ErrUnknownNamespace, p.Namespace)
	}
	var ops []crdt.Op
	if err := blobcipher.DecryptJSON(key, p.Blob, &ops); err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.Ns != p.Namespace {
			return nil, fmt.Errorf("%w: op for %q in %q payload", ErrNamespaceMismatch, op.Ns, p.Namespace)
		}
	}
	return ops, nil
}
