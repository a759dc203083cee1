// Package crdt is the replicated-document substrate behind a den's private
// and shared documents. A document holds named map and list namespaces;
// mutations are expressed as ops that are idempotent and commutative, so
// replicas that have seen the same set of ops converge to the same state
// regardless of arrival order.
//
// Maps are last-writer-wins per key (lamport clock, actor id as tiebreak).
// Lists are RGA-style: every element has a stable identifier and anchors to a
// predecessor; deletes leave tombstones so later inserts still find their
// anchor. There is no in-place list update: replacing an element is a
// delete plus an insert anchored at the removed element.
package crdt

import "encoding/json"

// ElemID is the stable identity of a list element: the lamport clock at
// insertion plus the inserting actor. The zero value anchors to the list
// head.
type ElemID struct {
	Clock uint64 `json:"c"`
	Actor string `json:"a,omitempty"`
}

// IsZero reports whether id is the head anchor.
func (id ElemID) IsZero() bool {
	return id.Clock == 0 && id.Actor == ""
}

// Less orders element ids by clock, then actor. Siblings anchored to the same
// predecessor are laid out in descending order, which places the most recent
// concurrent insert closest to the anchor on every replica.
func (id ElemID) Less(other ElemID) bool {
	if id.Clock != other.Clock {
		return id.Clock < other.Clock
	}
	return id.Actor < other.Actor
}

// OpKind discriminates the four replicated mutations.
type OpKind string

const (
	OpMapSet     OpKind = "mapSet"
	OpMapDelete  OpKind = "mapDelete"
	OpListInsert OpKind = "listInsert"
	OpListDelete OpKind = "listDelete"
)

// Op is one replicated mutation. (Actor, Clock) is globally unique: an actor
// bumps its clock for every op it creates.
type Op struct {
	Actor string          `json:"actor"`
	Clock uint64          `json:"clock"`
	Ns    string          `json:"ns"`
	Kind  OpKind          `json:"kind"`
	Key   string          `json:"key,omitempty"`   // map ops
	Elem  ElemID          `json:"elem,omitempty"`  // list ops
	After ElemID          `json:"after,omitempty"` // listInsert anchor
	Value json.RawMessage `json:"value,omitempty"`
}

func (op Op) dedupeKey() opKey {
	return opKey{actor: op.Actor, clock: op.Clock}
}

type opKey struct {
	actor string
	clock uint64
}

// Elem is a visible list element in a read snapshot.
type Elem struct {
	ID    ElemID
	Value json.RawMessage
}

// Spec declares a document's namespaces up front. Ops naming an undeclared
// namespace are rejected rather than silently creating one.
type Spec struct {
	Maps  []string
	Lists []string
}
