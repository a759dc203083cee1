package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "den-1/audio_abc", []byte("encrypted audio")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "den-1/audio_abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "encrypted audio" {
		t.Fatalf("Get() = %q", got)
	}
	if err := s.Remove(ctx, "den-1/audio_abc"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, "den-1/audio_abc"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Get() after remove error = %v, want ErrBlobNotFound", err)
	}
}

func TestFSStoreMissingBlob(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrBlobNotFound", err)
	}
	if err := s.Remove(ctx, "nope"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Remove(missing) error = %v, want ErrBlobNotFound", err)
	}
}

func TestFSStoreRejectsEscapingRefs(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(filepath.Join(root, "blobs"))
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	for _, ref := range []string{"", "../outside", "../../etc/passwd", "/abs/path"} {
		if err := s.Put(ctx, ref, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted an escaping ref", ref)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "outside")); err == nil {
		t.Fatal("a blob escaped the store root")
	}
}
