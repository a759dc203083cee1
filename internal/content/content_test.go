package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/blobstore"
	"github.com/hari2309s/meerkat-sub001/internal/denstore"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
	"github.com/hari2309s/meerkat-sub001/internal/search"
)

// fakeClock hands out strictly increasing timestamps so ordering by creation
// time is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T) (*Service, nskeys.KeySet) {
	t.Helper()
	blobs, err := blobstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	keys, err := nskeys.GenerateKeySet(nskeys.Namespaces)
	if err != nil {
		t.Fatalf("GenerateKeySet() error = %v", err)
	}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	deviceKey := bytes.Repeat([]byte{0x2a}, 32)
	dens := denstore.New(t.TempDir(), "device-test", deviceKey)
	return NewService(dens, blobs, keys, WithClock(clock.now)), keys
}

func TestCreateAndSearchNotes(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	hello, err := s.CreateNote(ctx, "d1", "Hello", []string{"a"})
	if err != nil {
		t.Fatalf("CreateNote() error = %v", err)
	}
	if _, err := s.CreateNote(ctx, "d1", "unrelated", nil); err != nil {
		t.Fatalf("CreateNote() error = %v", err)
	}

	got, err := s.SearchNotes(ctx, "d1", search.Query{Text: "Hell"})
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != hello.ID {
		t.Fatalf("SearchNotes(\"Hell\") = %v, want exactly %q", got, hello.ID)
	}

	got, err = s.SearchNotes(ctx, "d1", search.Query{Text: "xyz"})
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("SearchNotes(\"xyz\") = %v, want empty", got)
	}
}

func TestListNotesNewestFirst(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	first, _ := s.CreateNote(ctx, "d1", "first", nil)
	second, _ := s.CreateNote(ctx, "d1", "second", nil)
	third, _ := s.CreateNote(ctx, "d1", "third", nil)

	notes, err := s.ListNotes(ctx, "d1")
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	want := []string{third.ID, second.ID, first.ID}
	if len(notes) != 3 {
		t.Fatalf("ListNotes() returned %d notes", len(notes))
	}
	for i, id := range want {
		if notes[i].ID != id {
			t.Fatalf("notes[%d] = %q, want %q", i, notes[i].ID, id)
		}
	}
}

func TestNoteUpdateAndDelete(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	note, _ := s.CreateNote(ctx, "d1", "draft", nil)
	updated, err := s.UpdateNote(ctx, "d1", note.ID, "final", []string{"t"})
	if err != nil {
		t.Fatalf("UpdateNote() error = %v", err)
	}
	if updated.Content != "final" || !updated.UpdatedAt.After(note.UpdatedAt) {
		t.Fatalf("UpdateNote() = %+v", updated)
	}

	if _, err := s.UpdateNote(ctx, "d1", "note_missing", "x", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateNote(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteNote(ctx, "d1", note.ID); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if _, err := s.GetNote(ctx, "d1", note.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetNote(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteNote(ctx, "d1", note.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteNote(missing) error = %v, want ErrNotFound", err)
	}
}

func TestShareNoteWritesEncryptedProjection(t *testing.T) {
	s, keys := newTestService(t)
	ctx := context.Background()

	note, _ := s.CreateNote(ctx, "d1", "secret plan", nil)
	shared, err := s.SetNoteShared(ctx, "d1", note.ID, true)
	if err != nil {
		t.Fatalf("SetNoteShared() error = %v", err)
	}
	if !shared.IsShared {
		t.Fatal("note not flagged shared")
	}

	den, err := s.dens.Open(ctx, "d1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	var blob blobcipher.EncryptedBlob
	ok, err := den.Shared.MapGet(nskeys.NamespaceSharedNotes, note.ID, &blob)
	if err != nil || !ok {
		t.Fatalf("projection MapGet() = %v, %v", ok, err)
	}
	var projected Note
	if err := blobcipher.DecryptJSON(keys[nskeys.NamespaceSharedNotes], blob, &projected); err != nil {
		t.Fatalf("DecryptJSON() error = %v", err)
	}
	if projected.Content != "secret plan" {
		t.Fatalf("projected content = %q", projected.Content)
	}

	// The wrong namespace key must fail authentication, not decode garbage.
	err = blobcipher.DecryptJSON(keys[nskeys.NamespaceDropbox], blob, &projected)
	if !errors.Is(err, blobcipher.ErrDecryptFailed) {
		t.Fatalf("DecryptJSON(wrong key) error = %v, want ErrDecryptFailed", err)
	}

	// Unshare removes the projection again.
	if _, err := s.SetNoteShared(ctx, "d1", note.ID, false); err != nil {
		t.Fatalf("SetNoteShared(false) error = %v", err)
	}
	if ok, _ := den.Shared.MapGet(nskeys.NamespaceSharedNotes, note.ID, nil); ok {
		t.Fatal("projection survived unshare")
	}
}

func TestUpdateSharedNoteRefreshesProjection(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	note, _ := s.CreateNote(ctx, "d1", "v1", nil)
	if _, err := s.SetNoteShared(ctx, "d1", note.ID, true); err != nil {
		t.Fatalf("SetNoteShared() error = %v", err)
	}
	if _, err := s.UpdateNote(ctx, "d1", note.ID, "v2", nil); err != nil {
		t.Fatalf("UpdateNote() error = %v", err)
	}
	projected, err := s.SharedNote(ctx, "d1", note.ID)
	if err != nil {
		t.Fatalf("SharedNote() error = %v", err)
	}
	if projected.Content != "v2" {
		t.Fatalf("projection content = %q, want refreshed v2", projected.Content)
	}
}

func TestAddVoiceMemo(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.AddVoiceMemo(ctx, "d1", "ref", -1, nil); err == nil {
		t.Fatal("negative duration accepted")
	}

	memo, err := s.AddVoiceMemo(ctx, "d1", "d1/audio_x", 12.5, nil)
	if err != nil {
		t.Fatalf("AddVoiceMemo() error = %v", err)
	}
	if memo.Analysis != nil {
		t.Fatal("memo without analysis has analysis")
	}
	journal, err := s.ListMoodJournal(ctx, "d1")
	if err != nil {
		t.Fatalf("ListMoodJournal() error = %v", err)
	}
	if len(journal) != 0 {
		t.Fatalf("journal = %v, want empty without analysis", journal)
	}

	// A memo created with analysis appends one mood entry.
	a := Analysis{Transcript: "good day", Mood: "calm", Valence: 0.6, Arousal: 0.2, Confidence: 0.9}
	withAnalysis, err := s.AddVoiceMemo(ctx, "d1", "d1/audio_y", 3, &a)
	if err != nil {
		t.Fatalf("AddVoiceMemo(with analysis) error = %v", err)
	}
	journal, _ = s.ListMoodJournal(ctx, "d1")
	if len(journal) != 1 {
		t.Fatalf("journal length = %d, want 1", len(journal))
	}
	if journal[0].VoiceMemoID != withAnalysis.ID || journal[0].Mood != "calm" {
		t.Fatalf("journal entry = %+v", journal[0])
	}
}

func TestAttachAnalysisPreservesPositions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, ref := range []string{"r1", "r2", "r3"} {
		memo, err := s.AddVoiceMemo(ctx, "d1", ref, 1, nil)
		if err != nil {
			t.Fatalf("AddVoiceMemo() error = %v", err)
		}
		ids = append(ids, memo.ID)
	}

	a := Analysis{Mood: "tense", Valence: -0.4, Arousal: 0.8}
	updated, err := s.AttachAnalysis(ctx, "d1", ids[1], a)
	if err != nil {
		t.Fatalf("AttachAnalysis() error = %v", err)
	}
	if updated.Analysis == nil || updated.Analysis.Mood != "tense" {
		t.Fatalf("updated memo = %+v", updated)
	}

	memos, err := s.ListVoiceMemos(ctx, "d1")
	if err != nil {
		t.Fatalf("ListVoiceMemos() error = %v", err)
	}
	// Newest-first listing: r3, r2, r1. The middle memo keeps its slot.
	if len(memos) != 3 {
		t.Fatalf("memo count = %d", len(memos))
	}
	want := []string{ids[2], ids[1], ids[0]}
	for i, id := range want {
		if memos[i].ID != id {
			t.Fatalf("memos[%d] = %q, want %q", i, memos[i].ID, id)
		}
	}
	if memos[0].Analysis != nil || memos[2].Analysis != nil {
		t.Fatal("analysis leaked onto a neighboring memo")
	}

	journal, _ := s.ListMoodJournal(ctx, "d1")
	if len(journal) != 1 || journal[0].VoiceMemoID != ids[1] {
		t.Fatalf("journal = %+v", journal)
	}

	if _, err := s.AttachAnalysis(ctx, "d1", "memo_missing", a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AttachAnalysis(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMoodJournalAppendOnly(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	memo, err := s.AddVoiceMemo(ctx, "d1", "r1", 1, &Analysis{Mood: "flat"})
	if err != nil {
		t.Fatalf("AddVoiceMemo() error = %v", err)
	}
	before, _ := s.ListMoodJournal(ctx, "d1")

	// Replacing the analysis appends; it never rewrites history.
	if _, err := s.AttachAnalysis(ctx, "d1", memo.ID, Analysis{Mood: "bright"}); err != nil {
		t.Fatalf("AttachAnalysis() error = %v", err)
	}
	after, _ := s.ListMoodJournal(ctx, "d1")
	if len(after) != len(before)+1 {
		t.Fatalf("journal length %d -> %d, want strict growth", len(before), len(after))
	}
	for i, entry := range before {
		if after[i].ID != entry.ID || !after[i].RecordedAt.Equal(entry.RecordedAt) {
			t.Fatalf("existing entry %d changed: %+v -> %+v", i, entry, after[i])
		}
	}
}

func TestVoiceBlobAndShare(t *testing.T) {
	s, keys := newTestService(t)
	ctx := context.Background()

	ref, err := s.StoreVoiceBlob(ctx, "d1", []byte("opus frames"))
	if err != nil {
		t.Fatalf("StoreVoiceBlob() error = %v", err)
	}
	memo, err := s.AddVoiceMemo(ctx, "d1", ref, 4, nil)
	if err != nil {
		t.Fatalf("AddVoiceMemo() error = %v", err)
	}
	if err := s.ShareVoiceMemo(ctx, "d1", memo.ID); err != nil {
		t.Fatalf("ShareVoiceMemo() error = %v", err)
	}
	if err := s.ShareVoiceMemo(ctx, "d1", "memo_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ShareVoiceMemo(missing) error = %v, want ErrNotFound", err)
	}

	den, _ := s.dens.Open(ctx, "d1")
	elems := den.Shared.ListSlice(nskeys.NamespaceVoiceThread)
	if len(elems) != 1 {
		t.Fatalf("voice thread length = %d", len(elems))
	}
	var blob blobcipher.EncryptedBlob
	if err := json.Unmarshal(elems[0].Value, &blob); err != nil {
		t.Fatalf("decode thread element: %v", err)
	}
	var shared VoiceMemo
	if err := blobcipher.DecryptJSON(keys[nskeys.NamespaceVoiceThread], blob, &shared); err != nil {
		t.Fatalf("DecryptJSON() error = %v", err)
	}
	if shared.ID != memo.ID || shared.BlobRef != ref {
		t.Fatalf("shared memo = %+v", shared)
	}
}

func TestDropboxLifecycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	item, err := s.DropItem(ctx, "d1", "visitor_1", []byte("a file for you"))
	if err != nil {
		t.Fatalf("DropItem() error = %v", err)
	}
	items, err := s.ListDropboxItems(ctx, "d1")
	if err != nil {
		t.Fatalf("ListDropboxItems() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID || items[0].VisitorID != "visitor_1" {
		t.Fatalf("items = %+v", items)
	}
	payload, err := s.OpenDropboxItem(items[0])
	if err != nil {
		t.Fatalf("OpenDropboxItem() error = %v", err)
	}
	if string(payload) != "a file for you" {
		t.Fatalf("payload = %q", payload)
	}

	if err := s.DeleteDropboxItem(ctx, "d1", "drop_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteDropboxItem(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDropboxItem(ctx, "d1", item.ID); err != nil {
		t.Fatalf("DeleteDropboxItem() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.DropItem(ctx, "d1", "visitor_2", []byte("x")); err != nil {
			t.Fatalf("DropItem() error = %v", err)
		}
	}
	if err := s.ClearDropbox(ctx, "d1"); err != nil {
		t.Fatalf("ClearDropbox() error = %v", err)
	}
	items, _ = s.ListDropboxItems(ctx, "d1")
	if len(items) != 0 {
		t.Fatalf("dropbox not cleared: %+v", items)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	first, err := s.UpsertPresence(ctx, "d1", PresenceInfo{
		VisitorID:   "visitor_1",
		DisplayName: "guest",
		Scopes:      []string{nskeys.NamespaceDropbox},
	})
	if err != nil {
		t.Fatalf("UpsertPresence() error = %v", err)
	}
	if first.ConnectedAt.IsZero() || first.LastSeenAt.IsZero() {
		t.Fatalf("timestamps not stamped: %+v", first)
	}

	// A reconnect keeps the original ConnectedAt and refreshes LastSeenAt.
	second, err := s.UpsertPresence(ctx, "d1", PresenceInfo{VisitorID: "visitor_1", DisplayName: "guest"})
	if err != nil {
		t.Fatalf("UpsertPresence() error = %v", err)
	}
	if !second.ConnectedAt.Equal(first.ConnectedAt) {
		t.Fatalf("ConnectedAt changed on reconnect: %v -> %v", first.ConnectedAt, second.ConnectedAt)
	}
	if !second.LastSeenAt.After(first.LastSeenAt) {
		t.Fatalf("LastSeenAt not refreshed: %v -> %v", first.LastSeenAt, second.LastSeenAt)
	}

	infos, err := s.ListPresence(ctx, "d1")
	if err != nil {
		t.Fatalf("ListPresence() error = %v", err)
	}
	if len(infos) != 1 || infos[0].VisitorID != "visitor_1" {
		t.Fatalf("presence = %+v", infos)
	}

	if err := s.RemovePresence(ctx, "d1", "visitor_1"); err != nil {
		t.Fatalf("RemovePresence() error = %v", err)
	}
	// Removing an absent visitor stays a no-op.
	if err := s.RemovePresence(ctx, "d1", "visitor_1"); err != nil {
		t.Fatalf("second RemovePresence() error = %v", err)
	}
	infos, _ = s.ListPresence(ctx, "d1")
	if len(infos) != 0 {
		t.Fatalf("presence not removed: %+v", infos)
	}
}

func TestSettings(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, "d1", "theme", "burrow-dark"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	var theme string
	if err := s.GetSetting(ctx, "d1", "theme", &theme); err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if theme != "burrow-dark" {
		t.Fatalf("theme = %q", theme)
	}

	if err := s.GetSetting(ctx, "d1", "missing", &theme); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSetting(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSetting(ctx, "d1", "theme"); err != nil {
		t.Fatalf("DeleteSetting() error = %v", err)
	}
	if err := s.DeleteSetting(ctx, "d1", "theme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteSetting(missing) error = %v, want ErrNotFound", err)
	}
}
