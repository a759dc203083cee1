// Package capability models what a visitor may do inside a den and packages
// the matching key material into a sealed invite. Possession of an opened
// invite is the authorization: there is no account lookup on the receiving
// side, only the keys the grant carried.
package capability

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hari2309s/meerkat-sub001/internal/bundle"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// Action is the verb a scope is checked against.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// ErrInvalidGrant is returned for a grant naming an unknown namespace or
// repeating one.
var ErrInvalidGrant = errors.New("invalid capability grant")

// Scope is one namespace's access level. Read access is implied by the
// scope's presence; Write widens it.
type Scope struct {
	Namespace string `json:"namespace"`
	Write     bool   `json:"write"`
}

// Grant is the set of scopes a visitor is invited with.
type Grant struct {
	Scopes []Scope `json:"scopes"`
}

// NewGrant builds a read/write grant covering the given namespaces.
func NewGrant(write bool, namespaces ...string) Grant {
	g := Grant{Scopes: make([]Scope, 0, len(namespaces))}
	for _, ns := range namespaces {
		g.Scopes = append(g.Scopes, Scope{Namespace: ns, Write: write})
	}
	return g
}

// Validate rejects grants that name unknown namespaces or list a namespace
// twice.
func (g Grant) Validate() error {
	seen := make(map[string]bool, len(g.Scopes))
	for _, scope := range g.Scopes {
		if !nskeys.Known(scope.Namespace) {
			return fmt.Errorf("%w: unknown namespace %q", ErrInvalidGrant, scope.Namespace)
		}
		if seen[scope.Namespace] {
			return fmt.Errorf("%w: duplicate namespace %q", ErrInvalidGrant, scope.Namespace)
		}
		seen[scope.Namespace] = true
	}
	return nil
}

// Can reports whether the grant permits action on ns. A namespace outside the
// grant permits nothing.
func (g Grant) Can(ns string, action Action) bool {
	for _, scope := range g.Scopes {
		if scope.Namespace != ns {
			continue
		}
		switch action {
		case ActionRead:
			return true
		case ActionWrite:
			return scope.Write
		}
		return false
	}
	return false
}

// Namespaces returns the granted namespaces in scope order.
func (g Grant) Namespaces() []string {
	out := make([]string, 0, len(g.Scopes))
	for _, scope := range g.Scopes {
		out = append(out, scope.Namespace)
	}
	return out
}

// Invite is the plaintext payload of a sealed invite bundle.
type Invite struct {
	DenID string          `json:"denId"`
	Grant Grant           `json:"grant"`
	Keys  json.RawMessage `json:"keys"`
}

// SealInvite builds an invite for the visitor identified by visitorPub. The
// sealed bundle carries the keys for exactly the granted namespaces and
// nothing else, so a dropbox-only visitor never holds the notes key. When
// ownerSec is non-nil the invite is sealed with the owner's long-term key;
// otherwise an ephemeral key is used.
func SealInvite(denID string, grant Grant, keys nskeys.KeySet, visitorPub, ownerSec *[32]byte) (bundle.EncryptedBundle, error) {
	if err := grant.Validate(); err != nil {
		return bundle.EncryptedBundle{}, err
	}
	subset, err := keys.Subset(grant.Namespaces()...)
	if err != nil {
		return bundle.EncryptedBundle{}, err
	}
	encoded, err := subset.Marshal()
	if err != nil {
		return bundle.EncryptedBundle{}, err
	}
	invite := Invite{DenID: denID, Grant: grant, Keys: encoded}
	return bundle.Seal(invite, visitorPub, ownerSec)
}

// OpenInvite opens a sealed invite with the visitor's secret key and returns
// the den id, the grant, and the namespace keys it carried. The keys are
// checked against the grant: an invite whose key set does not match its own
// scopes is malformed.
func OpenInvite(b bundle.EncryptedBundle, visitorSec *[32]byte) (string, Grant, nskeys.KeySet, error) {
	var invite Invite
	if err := bundle.OpenJSON(b, visitorSec, &invite); err != nil {
		return "", Grant{}, nil, err
	}
	if err := invite.Grant.Validate(); err != nil {
		return "", Grant{}, nil, err
	}
	keys, err := nskeys.Unmarshal(invite.Keys)
	if err != nil {
		return "", Grant{}, nil, err
	}
	for _, ns := range invite.Grant.Namespaces() {
		if _, ok := keys[ns]; !ok {
			return "", Grant{}, nil, fmt.Errorf("%w: invite is missing the key for granted namespace %q", nskeys.ErrMalformedKeySet, ns)
		}
	}
	return invite.DenID, invite.Grant, keys, nil
}
