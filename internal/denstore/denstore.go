// Package denstore owns the lifecycle of each den's private and shared
// replicated documents: create-or-load from local storage, a single-instance
// in-memory cache keyed by den id, and teardown. Content operations never
// construct documents directly; they borrow through this store, which is
// what guarantees at most one live document instance per den per process.
package denstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// Private-document namespaces.
const (
	NamespaceNotes       = "notes"
	NamespaceVoiceMemos  = "voiceMemos"
	NamespaceMoodJournal = "moodJournal"
	NamespaceSettings    = "settings"
)

// PrivateSpec and SharedSpec declare the namespaces of the two documents
// every den owns.
var (
	PrivateSpec = crdt.Spec{
		Maps:  []string{NamespaceNotes, NamespaceSettings},
		Lists: []string{NamespaceVoiceMemos, NamespaceMoodJournal},
	}
	SharedSpec = crdt.Spec{
		Maps:  []string{nskeys.NamespaceSharedNotes, nskeys.NamespacePresence},
		Lists: []string{nskeys.NamespaceVoiceThread, nskeys.NamespaceDropbox},
	}
)

var (
	// ErrDenClosed is returned when a handle from a previous Open is used
	// after Close evicted it.
	ErrDenClosed = errors.New("den is closed")

	// ErrPersistence wraps local-storage failures. The den stays unusable;
	// the caller retries by re-invoking Open.
	ErrPersistence = errors.New("persistence unavailable")
)

// Store is the process-wide den registry. It is dependency-injected, never a
// package global, and its cache is the only shared mutable resource outside
// the documents themselves.
type Store struct {
	dir       string
	actor     string
	deviceKey []byte
	logger    *zap.Logger

	mu   sync.Mutex
	dens map[string]*denEntry
}

// denEntry tracks one den through closed → opening → open. A failed open is
// never cached: the entry is removed so a retry attempts a clean open.
type denEntry struct {
	ready chan struct{} // closed once the open attempt finishes
	den   *Den
	err   error
}

// Den is an open den: the pair of live documents plus their persistence
// handles.
type Den struct {
	ID      string
	Private *crdt.Doc
	Shared  *crdt.Doc

	privateFile *docFile
	sharedFile  *docFile
	closed      atomic.Bool
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store persisting under dir. actor identifies this device in
// replicated ops; deviceKey is the 32-byte device key every journaled op is
// encrypted under, so documents at rest are unreadable without it.
func New(dir, actor string, deviceKey []byte, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		actor:     actor,
		deviceKey: deviceKey,
		logger:    zap.NewNop(),
		dens:      make(map[string]*denEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the den's documents, creating or loading them from local
// storage on first use. Concurrent calls for the same id share a single open:
// the second caller awaits the first's in-flight attempt and receives the
// same handle, never a second document instance.
func (s *Store) Open(ctx context.Context, denID string) (*Den, error) {
	s.mu.Lock()
	if entry, ok := s.dens[denID]; ok {
		s.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.den, nil
	}
	entry := &denEntry{ready: make(chan struct{})}
	s.dens[denID] = entry
	s.mu.Unlock()

	den, err := s.openDocuments(ctx, denID)
	s.finishOpen(denID, entry, den, err)

	if err != nil {
		s.logger.Warn("den open failed", zap.String("den", denID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("den opened", zap.String("den", denID))
	return den, nil
}

// finishOpen resolves an in-flight open attempt. A failed attempt is evicted
// so a retry opens cleanly, but only if the cache still holds this attempt's
// entry: Close may already have evicted it and a later Open inserted a new
// one, which must not be disturbed.
func (s *Store) finishOpen(denID string, entry *denEntry, den *Den, err error) {
	s.mu.Lock()
	if err != nil {
		entry.err = err
		if s.dens[denID] == entry {
			delete(s.dens, denID)
		}
	} else {
		entry.den = den
	}
	close(entry.ready)
	s.mu.Unlock()
}

// Close releases the den's persistence resources and evicts it from the
// cache. A no-op if the den is not open. Handles returned by earlier Opens
// become invalid for further mutation; re-opening loads fresh from storage.
func (s *Store) Close(denID string) error {
	s.mu.Lock()
	entry, ok := s.dens[denID]
	if ok {
		delete(s.dens, denID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	<-entry.ready
	if entry.den == nil {
		return nil
	}
	den := entry.den
	den.closed.Store(true)
	err := den.privateFile.close()
	if err2 := den.sharedFile.close(); err == nil {
		err = err2
	}
	s.logger.Info("den closed", zap.String("den", denID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// IsOpen reports cache membership only; it never triggers an open.
func (s *Store) IsOpen(denID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.dens[denID]
	if !ok {
		return false
	}
	select {
	case <-entry.ready:
		return entry.den != nil
	default:
		// Still opening; not observable as open yet.
		return false
	}
}

// openDocuments loads the private and shared documents concurrently. Both
// are fully loaded before the den is handed out.
func (s *Store) openDocuments(ctx context.Context, denID string) (*Den, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	type result struct {
		doc  *crdt.Doc
		file *docFile
		err  error
	}
	load := func(kind string, spec crdt.Spec, out *result) {
		file, err := openDocFile(docPath(s.dir, denID, kind), s.deviceKey)
		if err != nil {
			out.err = fmt.Errorf("%w: %v", ErrPersistence, err)
			return
		}
		ops, err := file.load()
		if err != nil {
			_ = file.close()
			out.err = fmt.Errorf("%w: %v", ErrPersistence, err)
			return
		}
		doc := crdt.NewDoc(s.actor, spec)
		if err := doc.Apply(ops); err != nil {
			_ = file.close()
			out.err = fmt.Errorf("load %s document: %w", kind, err)
			return
		}
		out.doc, out.file = doc, file
	}

	var private, shared result
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); load(KindPrivate, PrivateSpec, &private) }()
	go func() { defer wg.Done(); load(KindShared, SharedSpec, &shared) }()
	wg.Wait()

	if private.err != nil || shared.err != nil {
		if private.file != nil {
			_ = private.file.close()
		}
		if shared.file != nil {
			_ = shared.file.close()
		}
		if private.err != nil {
			return nil, private.err
		}
		return nil, shared.err
	}

	return &Den{
		ID:          denID,
		Private:     private.doc,
		Shared:      shared.doc,
		privateFile: private.file,
		sharedFile:  shared.file,
		logger:      s.logger,
	}, nil
}

// UpdatePrivate runs one atomic transaction against the private document and
// journals the committed ops.
func (d *Den) UpdatePrivate(fn func(tx *crdt.Tx) error) error {
	return d.update(d.Private, d.privateFile, fn)
}

// UpdateShared runs one atomic transaction against the shared document and
// journals the committed ops.
func (d *Den) UpdateShared(fn func(tx *crdt.Tx) error) error {
	return d.update(d.Shared, d.sharedFile, fn)
}

// update journals before it integrates: a failed journal write surfaces as
// ErrPersistence and leaves the in-memory document exactly as it was, so
// memory never runs ahead of what a restart would replay.
func (d *Den) update(doc *crdt.Doc, file *docFile, fn func(tx *crdt.Tx) error) error {
	if d.closed.Load() {
		return ErrDenClosed
	}
	ops, err := doc.StageOps(fn)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	if err := file.append(ops); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	doc.CommitOps(ops)
	return nil
}

// MergeShared integrates update ops received from a peer replica into the
// shared document, journaling whatever was new before it becomes visible.
func (d *Den) MergeShared(ops []crdt.Op) error {
	if d.closed.Load() {
		return ErrDenClosed
	}
	fresh, err := d.Shared.PrepareMerge(ops)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := d.sharedFile.append(fresh); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	d.Shared.CommitOps(fresh)
	return nil
}

// Subscribe registers fn for committed op batches on either document. kind is
// KindPrivate or KindShared. This is the hook the reactive UI collaborator
// attaches to; the core itself does not depend on it.
func (d *Den) Subscribe(fn func(kind string, ops []crdt.Op)) {
	d.Private.Subscribe(func(ops []crdt.Op) { fn(KindPrivate, ops) })
	d.Shared.Subscribe(func(ops []crdt.Op) { fn(KindShared, ops) })
}
