// Package nskeys manages the per-namespace symmetric keys of the shared
// document. The namespace is the unit of capability granularity: each key is
// independently random, so compromising one namespace's key exposes nothing
// about any other.
package nskeys

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hari2309s/meerkat-sub001/internal/primitives"
)

// Shared-document namespace identifiers.
const (
	NamespaceSharedNotes = "sharedNotes"
	NamespaceVoiceThread = "voiceThread"
	NamespaceDropbox     = "dropbox"
	NamespacePresence    = "presence"
)

// Namespaces enumerates every shared-document namespace, in document order.
var Namespaces = []string{
	NamespaceSharedNotes,
	NamespaceVoiceThread,
	NamespaceDropbox,
	NamespacePresence,
}

const keySize = 32

var (
	// ErrUnknownNamespace is returned for a namespace name outside Namespaces.
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrMalformedKeySet is returned when a serialized key set cannot be
	// decoded into usable keys.
	ErrMalformedKeySet = errors.New("malformed namespace key set")
)

// KeySet maps a namespace name to its raw 256-bit key. A KeySet, usually a
// subset of the owner's full set, is what gets sealed into a capability
// bundle for a visitor.
type KeySet map[string][]byte

// GenerateKey returns a fresh random namespace key.
func GenerateKey() ([]byte, error) {
	return primitives.RandomBytes(keySize)
}

// GenerateKeySet returns one independent key per listed namespace.
func GenerateKeySet(namespaces []string) (KeySet, error) {
	set := make(KeySet, len(namespaces))
	for _, ns := range namespaces {
		if !Known(ns) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
		}
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		set[ns] = key
	}
	return set, nil
}

// Known reports whether ns is a shared-document namespace.
func Known(ns string) bool {
	for _, name := range Namespaces {
		if name == ns {
			return true
		}
	}
	return false
}

// Subset returns the keys for exactly the listed namespaces. A namespace the
// set does not hold is an error: a grant must never silently shrink.
func (s KeySet) Subset(namespaces ...string) (KeySet, error) {
	out := make(KeySet, len(namespaces))
	for _, ns := range namespaces {
		key, ok := s[ns]
		if !ok {
			return nil, fmt.Errorf("key set has no key for namespace %q", ns)
		}
		out[ns] = key
	}
	return out, nil
}

// Names returns the namespaces the set covers, sorted.
func (s KeySet) Names() []string {
	names := make([]string, 0, len(s))
	for ns := range s {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Marshal serializes the set to JSON with base64url-encoded key material, the
// transportable form that gets sealed into bundles.
func (s KeySet) Marshal() ([]byte, error) {
	encoded := make(map[string]string, len(s))
	for ns, key := range s {
		encoded[ns] = primitives.ToBase64(key)
	}
	return json.Marshal(encoded)
}

// Unmarshal decodes a serialized key set back into usable key handles.
func Unmarshal(data []byte) (KeySet, error) {
	var encoded map[string]string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeySet, err)
	}
	set := make(KeySet, len(encoded))
	for ns, enc := range encoded {
		key, err := primitives.FromBase64(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: namespace %q: %v", ErrMalformedKeySet, ns, err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("%w: namespace %q: key length %d", ErrMalformedKeySet, ns, len(key))
		}
		set[ns] = key
	}
	return set, nil
}
