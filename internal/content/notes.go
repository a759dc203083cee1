package content

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/denstore"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
	"github.com/hari2309s/meerkat-sub001/internal/search"
	"github.com/hari2309s/meerkat-sub001/internal/util"
)

// CreateNote adds a note to the den's private document and returns it.
func (s *Service) CreateNote(ctx context.Context, denID, content string, tags []string) (Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return Note{}, err
	}
	now := s.now()
	note := Note{
		ID:        util.NewID("note"),
		Content:   content,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = den.UpdatePrivate(func(tx *crdt.Tx) error {
		tx.MapSet(denstore.NamespaceNotes, note.ID, note)
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	s.logger.Debug("note created", zap.String("den", denID), zap.String("note", note.ID))
	return note, nil
}

// UpdateNote replaces a note's content and tags. If the note is shared its
// projection in the shared document is refreshed in the same call.
func (s *Service) UpdateNote(ctx context.Context, denID, noteID, content string, tags []string) (Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return Note{}, err
	}
	var note Note
	err = den.UpdatePrivate(func(tx *crdt.Tx) error {
		ok, err := tx.MapGet(denstore.NamespaceNotes, noteID, &note)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: note %q", ErrNotFound, noteID)
		}
		note.Content = content
		note.Tags = tags
		note.UpdatedAt = s.now()
		tx.MapSet(denstore.NamespaceNotes, noteID, note)
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	if note.IsShared {
		if err := s.projectNote(den, note); err != nil {
			return Note{}, err
		}
	}
	return note, nil
}

// DeleteNote removes a note; a shared note's projection is removed as well.
func (s *Service) DeleteNote(ctx context.Context, denID, noteID string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	var note Note
	err = den.UpdatePrivate(func(tx *crdt.Tx) error {
		ok, err := tx.MapGet(denstore.NamespaceNotes, noteID, &note)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: note %q", ErrNotFound, noteID)
		}
		tx.MapDelete(denstore.NamespaceNotes, noteID)
		return nil
	})
	if err != nil {
		return err
	}
	if note.IsShared {
		return den.UpdateShared(func(tx *crdt.Tx) error {
			tx.MapDelete(nskeys.NamespaceSharedNotes, noteID)
			return nil
		})
	}
	return nil
}

// GetNote reads one note by id.
func (s *Service) GetNote(ctx context.Context, denID, noteID string) (Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return Note{}, err
	}
	var note Note
	ok, err := den.Notes().Get(noteID, &note)
	if err != nil {
		return Note{}, err
	}
	if !ok {
		return Note{}, fmt.Errorf("%w: note %q", ErrNotFound, noteID)
	}
	return note, nil
}

// SetNoteShared shares or unshares a note. Sharing writes the encrypted
// projection before flipping the flag; unsharing flips the flag before
// removing the projection. Either way the invariant holds at every step: a
// note with isShared=true always has a projection, possibly stale.
func (s *Service) SetNoteShared(ctx context.Context, denID, noteID string, shared bool) (Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return Note{}, err
	}
	var note Note
	ok, err := den.Notes().Get(noteID, &note)
	if err != nil {
		return Note{}, err
	}
	if !ok {
		return Note{}, fmt.Errorf("%w: note %q", ErrNotFound, noteID)
	}
	if note.IsShared == shared {
		return note, nil
	}

	setFlag := func(v bool) error {
		return den.UpdatePrivate(func(tx *crdt.Tx) error {
			ok, err := tx.MapGet(denstore.NamespaceNotes, noteID, &note)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: note %q", ErrNotFound, noteID)
			}
			note.IsShared = v
			note.UpdatedAt = s.now()
			tx.MapSet(denstore.NamespaceNotes, noteID, note)
			return nil
		})
	}

	if shared {
		if err := s.projectNote(den, note); err != nil {
			return Note{}, err
		}
		if err := setFlag(true); err != nil {
			return Note{}, err
		}
	} else {
		if err := setFlag(false); err != nil {
			return Note{}, err
		}
		err := den.UpdateShared(func(tx *crdt.Tx) error {
			tx.MapDelete(nskeys.NamespaceSharedNotes, noteID)
			return nil
		})
		if err != nil {
			return Note{}, err
		}
	}
	s.logger.Debug("note sharing changed",
		zap.String("den", denID), zap.String("note", noteID), zap.Bool("shared", shared))
	return note, nil
}

// projectNote writes the note, encrypted under the sharedNotes key, into the
// shared document keyed by note id.
func (s *Service) projectNote(den *denstore.Den, note Note) error {
	key, err := s.namespaceKey(nskeys.NamespaceSharedNotes)
	if err != nil {
		return err
	}
	blob, err := blobcipher.EncryptJSON(key, note)
	if err != nil {
		return err
	}
	return den.UpdateShared(func(tx *crdt.Tx) error {
		tx.MapSet(nskeys.NamespaceSharedNotes, note.ID, blob)
		return nil
	})
}

// SharedNote decrypts one projection from the shared document, for the
// receiving side of a sync.
func (s *Service) SharedNote(ctx context.Context, denID, noteID string) (Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return Note{}, err
	}
	var blob blobcipher.EncryptedBlob
	ok, err := den.SharedNotes().Get(noteID, &blob)
	if err != nil {
		return Note{}, err
	}
	if !ok {
		return Note{}, fmt.Errorf("%w: shared note %q", ErrNotFound, noteID)
	}
	key, err := s.namespaceKey(nskeys.NamespaceSharedNotes)
	if err != nil {
		return Note{}, err
	}
	var note Note
	if err := blobcipher.DecryptJSON(key, blob, &note); err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListNotes returns every note, newest-first by creation time.
func (s *Service) ListNotes(ctx context.Context, denID string) ([]Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	return listNotes(den)
}

func listNotes(den *denstore.Den) ([]Note, error) {
	snap := den.Notes().Snapshot()
	notes := make([]Note, 0, len(snap))
	for id, raw := range snap {
		var note Note
		if err := json.Unmarshal(raw, &note); err != nil {
			return nil, fmt.Errorf("decode note %q: %w", id, err)
		}
		notes = append(notes, note)
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// SearchNotes filters notes by substring query, optional shared-only flag,
// and optional tag, capped at the search package's default limit.
func (s *Service) SearchNotes(ctx context.Context, denID string, q search.Query) ([]Note, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	notes, err := listNotes(den)
	if err != nil {
		return nil, err
	}
	records := make([]search.Record, len(notes))
	byID := make(map[string]Note, len(notes))
	for i, note := range notes {
		records[i] = search.Record{
			ID:       note.ID,
			Content:  note.Content,
			Tags:     note.Tags,
			IsShared: note.IsShared,
		}
		byID[note.ID] = note
	}
	ids := search.Filter(records, q)
	out := make([]Note, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}
