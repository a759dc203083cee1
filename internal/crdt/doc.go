package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Doc is one replicated document. All access is serialized on an internal
// mutex; the transaction is the atomic unit of mutation.
type Doc struct {
	mu    sync.Mutex
	actor string
	clock uint64
	maps  map[string]*mapState
	lists map[string]*listState
	log   []Op
	seen  map[opKey]struct{}
	subs  []func([]Op)
}

// NewDoc creates an empty document for the given actor with the namespaces
// declared by spec.
func NewDoc(actor string, spec Spec) *Doc {
	d := &Doc{
		actor: actor,
		maps:  make(map[string]*mapState, len(spec.Maps)),
		lists: make(map[string]*listState, len(spec.Lists)),
		seen:  make(map[opKey]struct{}),
	}
	for _, ns := range spec.Maps {
		d.maps[ns] = newMapState()
	}
	for _, ns := range spec.Lists {
		d.lists[ns] = newListState()
	}
	return d
}

// Actor returns the document's actor id.
func (d *Doc) Actor() string { return d.actor }

// Transact runs fn and commits its staged ops all-or-nothing: if fn returns
// an error nothing is applied and the error is returned unchanged.
// Subscribers observe the committed ops after the transaction completes.
func (d *Doc) Transact(fn func(tx *Tx) error) error {
	_, err := d.TransactOps(fn)
	return err
}

// TransactOps is Transact returning the committed ops, for callers like the
// persistence layer that need to journal exactly what was applied.
func (d *Doc) TransactOps(fn func(tx *Tx) error) ([]Op, error) {
	d.mu.Lock()
	tx := &Tx{doc: d}
	if err := fn(tx); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if tx.err != nil {
		d.mu.Unlock()
		return nil, tx.err
	}
	committed := tx.staged
	for _, op := range committed {
		d.applyLocked(op)
	}
	subs := d.subs
	d.mu.Unlock()

	if len(committed) > 0 {
		for _, sub := range subs {
			sub(committed)
		}
	}
	return committed, nil
}

// StageOps runs fn and returns its staged ops without integrating them. The
// persistence layer uses StageOps + CommitOps to journal ops before they
// become visible, so a failed journal write leaves the document untouched.
// Staged ops consume clock values whether or not they are later committed.
func (d *Doc) StageOps(fn func(tx *Tx) error) ([]Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{doc: d}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if tx.err != nil {
		return nil, tx.err
	}
	return tx.staged, nil
}

// CommitOps integrates ops previously returned by StageOps or PrepareMerge.
// Already-integrated ops are skipped, so a retried commit is safe.
// Subscribers observe the ops that were actually applied.
func (d *Doc) CommitOps(ops []Op) {
	d.mu.Lock()
	applied := make([]Op, 0, len(ops))
	for _, op := range ops {
		if _, dup := d.seen[op.dedupeKey()]; dup {
			continue
		}
		if op.Clock > d.clock {
			d.clock = op.Clock
		}
		d.applyLocked(op)
		applied = append(applied, op)
	}
	subs := d.subs
	d.mu.Unlock()

	if len(applied) > 0 {
		for _, sub := range subs {
			sub(applied)
		}
	}
}

// PrepareMerge filters a peer batch down to the ops new to this replica and
// validates their namespaces, without integrating anything. The caller
// journals the result, then hands it to CommitOps.
func (d *Doc) PrepareMerge(ops []Op) ([]Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fresh := make([]Op, 0, len(ops))
	batch := make(map[opKey]struct{}, len(ops))
	for _, op := range ops {
		k := op.dedupeKey()
		if _, dup := d.seen[k]; dup {
			continue
		}
		if _, dup := batch[k]; dup {
			continue
		}
		if err := d.checkNamespace(op); err != nil {
			return nil, err
		}
		batch[k] = struct{}{}
		fresh = append(fresh, op)
	}
	return fresh, nil
}

// Apply merges ops from another replica. Already-seen ops are skipped, so
// applying the same update twice, or two replicas' updates in either order,
// converges. Subscribers observe only the newly integrated ops.
func (d *Doc) Apply(ops []Op) error {
	_, err := d.ApplyOps(ops)
	return err
}

// ApplyOps is Apply returning the ops that were actually new to this replica.
func (d *Doc) ApplyOps(ops []Op) ([]Op, error) {
	d.mu.Lock()
	fresh := make([]Op, 0, len(ops))
	for _, op := range ops {
		if _, dup := d.seen[op.dedupeKey()]; dup {
			continue
		}
		if err := d.checkNamespace(op); err != nil {
			d.mu.Unlock()
			return nil, err
		}
		if op.Clock > d.clock {
			d.clock = op.Clock
		}
		d.applyLocked(op)
		fresh = append(fresh, op)
	}
	subs := d.subs
	d.mu.Unlock()

	if len(fresh) > 0 {
		for _, sub := range subs {
			sub(fresh)
		}
	}
	return fresh, nil
}

// Subscribe registers fn to be called with every batch of committed or merged
// ops. Used by the persistence layer and by reactive UI collaborators.
func (d *Doc) Subscribe(fn func([]Op)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

// Log returns a copy of every op the document has integrated, in integration
// order. Replaying the log into a fresh document reproduces the state.
func (d *Doc) Log() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.log))
	copy(out, d.log)
	return out
}

// MapGet reads one key of a map namespace into out. The second return is
// false when the key is absent (or the namespace unknown).
func (d *Doc) MapGet(ns, key string, out any) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.maps[ns]
	if !ok {
		return false, fmt.Errorf("unknown map namespace %q", ns)
	}
	raw, ok := m.get(key)
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return true, fmt.Errorf("decode %s[%s]: %w", ns, key, err)
		}
	}
	return true, nil
}

// MapSnapshot returns a plain, non-live copy of a map namespace.
func (d *Doc) MapSnapshot(ns string) map[string]json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.maps[ns]
	if !ok {
		return nil
	}
	return m.snapshot()
}

// MapKeys returns the live keys of a map namespace, sorted.
func (d *Doc) MapKeys(ns string) []string {
	snap := d.MapSnapshot(ns)
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListSlice returns the visible elements of a list namespace in list order.
// The slice is a plain snapshot, not bound to later changes.
func (d *Doc) ListSlice(ns string) []Elem {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lists[ns]
	if !ok {
		return nil
	}
	return l.order()
}

// ListLen returns the number of visible elements in a list namespace.
func (d *Doc) ListLen(ns string) int {
	return len(d.ListSlice(ns))
}

func (d *Doc) applyLocked(op Op) {
	if m, ok := d.maps[op.Ns]; ok && (op.Kind == OpMapSet || op.Kind == OpMapDelete) {
		m.apply(op)
	} else if l, ok := d.lists[op.Ns]; ok {
		l.apply(op)
	}
	d.log = append(d.log, op)
	d.seen[op.dedupeKey()] = struct{}{}
}

func (d *Doc) checkNamespace(op Op) error {
	switch op.Kind {
	case OpMapSet, OpMapDelete:
		if _, ok := d.maps[op.Ns]; !ok {
			return fmt.Errorf("unknown map namespace %q", op.Ns)
		}
	case OpListInsert, OpListDelete:
		if _, ok := d.lists[op.Ns]; !ok {
			return fmt.Errorf("unknown list namespace %q", op.Ns)
		}
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return nil
}

// nextOp stamps a fresh (actor, clock) pair. Caller holds d.mu.
func (d *Doc) nextOp() (string, uint64) {
	d.clock++
	return d.actor, d.clock
}

// Tx stages ops for one atomic commit. Reads issued through the transaction
// see the committed state as of the transaction's start; staged writes become
// visible only on commit.
type Tx struct {
	doc    *Doc
	staged []Op
	err    error
	// tails overrides the append anchor per list namespace so that two
	// appends in one transaction chain correctly.
	tails map[string]ElemID
}

func (tx *Tx) fail(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

// MapSet stages a last-writer-wins set of ns[key] = v.
func (tx *Tx) MapSet(ns, key string, v any) {
	m, ok := tx.doc.maps[ns]
	if !ok || m == nil {
		tx.fail(fmt.Errorf("unknown map namespace %q", ns))
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		tx.fail(fmt.Errorf("encode %s[%s]: %w", ns, key, err))
		return
	}
	actor, clock := tx.doc.nextOp()
	tx.staged = append(tx.staged, Op{
		Actor: actor, Clock: clock, Ns: ns, Kind: OpMapSet, Key: key, Value: raw,
	})
}

// MapDelete stages removal of ns[key].
func (tx *Tx) MapDelete(ns, key string) {
	if _, ok := tx.doc.maps[ns]; !ok {
		tx.fail(fmt.Errorf("unknown map namespace %q", ns))
		return
	}
	actor, clock := tx.doc.nextOp()
	tx.staged = append(tx.staged, Op{
		Actor: actor, Clock: clock, Ns: ns, Kind: OpMapDelete, Key: key,
	})
}

// MapGet reads committed state during a transaction.
func (tx *Tx) MapGet(ns, key string, out any) (bool, error) {
	m, ok := tx.doc.maps[ns]
	if !ok {
		return false, fmt.Errorf("unknown map namespace %q", ns)
	}
	raw, ok := m.get(key)
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return true, fmt.Errorf("decode %s[%s]: %w", ns, key, err)
		}
	}
	return true, nil
}

// ListSlice reads the committed elements of a list namespace.
func (tx *Tx) ListSlice(ns string) []Elem {
	l, ok := tx.doc.lists[ns]
	if !ok {
		return nil
	}
	return l.order()
}

// ListAppend stages an insert at the end of the list and returns the new
// element's id.
func (tx *Tx) ListAppend(ns string, v any) ElemID {
	l, ok := tx.doc.lists[ns]
	if !ok {
		tx.fail(fmt.Errorf("unknown list namespace %q", ns))
		return ElemID{}
	}
	after, overridden := ElemID{}, false
	if tx.tails != nil {
		after, overridden = tx.tails[ns], true
		if after.IsZero() {
			overridden = false
		}
	}
	if !overridden {
		after = l.tail()
	}
	return tx.ListInsertAfter(ns, after, v)
}

// ListInsertAfter stages an insert anchored at after (zero id = list head)
// and returns the new element's id.
func (tx *Tx) ListInsertAfter(ns string, after ElemID, v any) ElemID {
	if _, ok := tx.doc.lists[ns]; !ok {
		tx.fail(fmt.Errorf("unknown list namespace %q", ns))
		return ElemID{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		tx.fail(fmt.Errorf("encode %s element: %w", ns, err))
		return ElemID{}
	}
	actor, clock := tx.doc.nextOp()
	id := ElemID{Clock: clock, Actor: actor}
	tx.staged = append(tx.staged, Op{
		Actor: actor, Clock: clock, Ns: ns, Kind: OpListInsert,
		Elem: id, After: after, Value: raw,
	})
	if tx.tails == nil {
		tx.tails = make(map[string]ElemID)
	}
	tx.tails[ns] = id
	return id
}

// ListDelete stages a tombstone for the element with the given id.
func (tx *Tx) ListDelete(ns string, id ElemID) {
	if _, ok := tx.doc.lists[ns]; !ok {
		tx.fail(fmt.Errorf("unknown list namespace %q", ns))
		return
	}
	actor, clock := tx.doc.nextOp()
	tx.staged = append(tx.staged, Op{
		Actor: actor, Clock: clock, Ns: ns, Kind: OpListDelete, Elem: id,
	})
}
