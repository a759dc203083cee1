package crdt

import (
	"encoding/json"
	"sort"
)

// mapState is a last-writer-wins map. Deletes keep a tombstone so a stale
// concurrent Set with a lower clock cannot resurrect the entry.
type mapState struct {
	entries map[string]mapEntry
}

type mapEntry struct {
	value   json.RawMessage
	clock   uint64
	actor   string
	deleted bool
}

func newMapState() *mapState {
	return &mapState{entries: make(map[string]mapEntry)}
}

func (m *mapState) apply(op Op) {
	cur, ok := m.entries[op.Key]
	if ok && !wins(op.Clock, op.Actor, cur.clock, cur.actor) {
		return
	}
	m.entries[op.Key] = mapEntry{
		value:   op.Value,
		clock:   op.Clock,
		actor:   op.Actor,
		deleted: op.Kind == OpMapDelete,
	}
}

func (m *mapState) get(key string) (json.RawMessage, bool) {
	e, ok := m.entries[key]
	if !ok || e.deleted {
		return nil, false
	}
	return e.value, true
}

func (m *mapState) snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m.entries))
	for k, e := range m.entries {
		if !e.deleted {
			out[k] = e.value
		}
	}
	return out
}

// wins reports whether (clock a, actor a) takes precedence over the current
// winner.
func wins(aClock uint64, aActor string, bClock uint64, bActor string) bool {
	if aClock != bClock {
		return aClock > bClock
	}
	return aActor > bActor
}

// listState is an RGA-ish replicated list. Elements live in a tree keyed by
// anchor; traversal order is a depth-first walk with siblings in descending
// id order. Tombstoned elements stay in the tree as anchors.
type listState struct {
	elems    map[ElemID]*listElem
	children map[ElemID][]ElemID
	// pending holds ops whose anchor or target has not arrived yet; they are
	// retried after every successful integration.
	pending []Op
}

type listElem struct {
	id      ElemID
	value   json.RawMessage
	deleted bool
}

func newListState() *listState {
	return &listState{
		elems:    make(map[ElemID]*listElem),
		children: make(map[ElemID][]ElemID),
	}
}

// apply integrates op, buffering it when its anchor is unknown. Buffered ops
// are retried after every successful integration.
func (l *listState) apply(op Op) {
	if !l.integrate(op) {
		l.pending = append(l.pending, op)
		return
	}
	l.drainPending()
}

// integrate performs the raw state change. Returns false when op references
// an element that has not arrived yet.
func (l *listState) integrate(op Op) bool {
	switch op.Kind {
	case OpListInsert:
		if _, dup := l.elems[op.Elem]; dup {
			return true
		}
		if !op.After.IsZero() {
			if _, ok := l.elems[op.After]; !ok {
				return false
			}
		}
		l.elems[op.Elem] = &listElem{id: op.Elem, value: op.Value}
		l.children[op.After] = insertSorted(l.children[op.After], op.Elem)
		return true
	case OpListDelete:
		e, ok := l.elems[op.Elem]
		if !ok {
			return false
		}
		e.deleted = true
		return true
	}
	return true
}

func (l *listState) drainPending() {
	for {
		progressed := false
		remaining := l.pending[:0]
		for _, op := range l.pending {
			if l.integrate(op) {
				progressed = true
			} else {
				remaining = append(remaining, op)
			}
		}
		l.pending = remaining
		if !progressed || len(l.pending) == 0 {
			return
		}
	}
}

// insertSorted keeps sibling ids in descending order.
func insertSorted(ids []ElemID, id ElemID) []ElemID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i].Less(id) })
	ids = append(ids, ElemID{})
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// order walks the element tree and returns visible elements in list order.
func (l *listState) order() []Elem {
	out := make([]Elem, 0, len(l.elems))
	var walk func(anchor ElemID)
	walk = func(anchor ElemID) {
		for _, id := range l.children[anchor] {
			e := l.elems[id]
			if !e.deleted {
				out = append(out, Elem{ID: e.id, Value: e.value})
			}
			walk(id)
		}
	}
	walk(ElemID{})
	return out
}

// tail returns the id of the last element in traversal order, tombstones
// included, so appends keep a stable anchor even after deletions.
func (l *listState) tail() ElemID {
	last := ElemID{}
	var walk func(anchor ElemID)
	walk = func(anchor ElemID) {
		for _, id := range l.children[anchor] {
			last = id
			walk(id)
		}
	}
	walk(ElemID{})
	return last
}
