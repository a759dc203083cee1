// Package content implements the user-facing operations of a den: notes,
// voice memos, the mood journal, the visitor dropbox, presence, and settings.
// Every operation borrows the den's documents through the den store and
// mutates them in one atomic transaction per document.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hari2309s/meerkat-sub001/internal/blobstore"
	"github.com/hari2309s/meerkat-sub001/internal/denstore"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// ErrNotFound is returned when an operation references a note, memo, item, or
// setting id that does not exist. Never conflated with a decryption failure.
var ErrNotFound = errors.New("item not found")

// Service exposes the content operations of all dens managed by one store.
type Service struct {
	dens   *denstore.Store
	blobs  blobstore.BlobStore
	keys   nskeys.KeySet
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the content layer. keys is the owner's full namespace key
// set; operations that touch the shared document fail if the key they need is
// absent.
func NewService(dens *denstore.Store, blobs blobstore.BlobStore, keys nskeys.KeySet, opts ...Option) *Service {
	s := &Service{
		dens:   dens,
		blobs:  blobs,
		keys:   keys,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) den(ctx context.Context, denID string) (*denstore.Den, error) {
	return s.dens.Open(ctx, denID)
}

func (s *Service) namespaceKey(ns string) ([]byte, error) {
	key, ok := s.keys[ns]
	if !ok {
		return nil, fmt.Errorf("no key for namespace %q", ns)
	}
	return key, nil
}
