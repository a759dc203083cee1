// Package blobstore stores opaque binary payloads, primarily encrypted voice
// memo audio, outside the replicated documents. Documents carry only the blob
// ref; the bytes live here.
package blobstore

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by Get and Remove for a ref with no stored
// bytes.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the storage abstraction the content layer writes audio through.
// Refs are opaque slash-separated paths, e.g. "den-1/audio_ab12cd".
type BlobStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
	Remove(ctx context.Context, ref string) error
}
