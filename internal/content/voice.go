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
	"github.com/hari2309s/meerkat-sub001/internal/util"
)

// StoreVoiceBlob writes already-encrypted audio bytes to the blob store and
// returns the ref a memo should carry.
func (s *Service) StoreVoiceBlob(ctx context.Context, denID string, data []byte) (string, error) {
	ref := denID + "/" + util.NewID("audio")
	if err := s.blobs.Put(ctx, ref, data); err != nil {
		return "", err
	}
	return ref, nil
}

// AddVoiceMemo appends a memo to the private document. When analysis is
// already present a derived mood journal entry is appended in the same
// transaction.
func (s *Service) AddVoiceMemo(ctx context.Context, denID, blobRef string, durationSeconds float64, analysis *Analysis) (VoiceMemo, error) {
	if durationSeconds < 0 {
		return VoiceMemo{}, fmt.Errorf("duration must not be negative, got %v", durationSeconds)
	}
	den, err := s.den(ctx, denID)
	if err != nil {
		return VoiceMemo{}, err
	}
	memo := VoiceMemo{
		ID:              util.NewID("memo"),
		BlobRef:         blobRef,
		DurationSeconds: durationSeconds,
		CreatedAt:       s.now(),
		Analysis:        analysis,
	}
	err = den.UpdatePrivate(func(tx *crdt.Tx) error {
		tx.ListAppend(denstore.NamespaceVoiceMemos, memo)
		if analysis != nil {
			tx.ListAppend(denstore.NamespaceMoodJournal, s.moodEntryFor(memo))
		}
		return nil
	})
	if err != nil {
		return VoiceMemo{}, err
	}
	s.logger.Debug("voice memo added", zap.String("den", denID), zap.String("memo", memo.ID))
	return memo, nil
}

// AttachAnalysis attaches (or replaces) the analysis of the memo with the
// given id and appends a derived mood journal entry. The sequence type has no
// in-place update, so the memo is tombstoned and reinserted anchored at its
// own old position, which leaves every other memo exactly where it was.
func (s *Service) AttachAnalysis(ctx context.Context, denID, memoID string, analysis Analysis) (VoiceMemo, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return VoiceMemo{}, err
	}
	var updated VoiceMemo
	err = den.UpdatePrivate(func(tx *crdt.Tx) error {
		for _, elem := range tx.ListSlice(denstore.NamespaceVoiceMemos) {
			var memo VoiceMemo
			if err := json.Unmarshal(elem.Value, &memo); err != nil {
				return fmt.Errorf("decode voice memo: %w", err)
			}
			if memo.ID != memoID {
				continue
			}
			memo.Analysis = &analysis
			tx.ListDelete(denstore.NamespaceVoiceMemos, elem.ID)
			tx.ListInsertAfter(denstore.NamespaceVoiceMemos, elem.ID, memo)
			tx.ListAppend(denstore.NamespaceMoodJournal, s.moodEntryFor(memo))
			updated = memo
			return nil
		}
		return fmt.Errorf("%w: voice memo %q", ErrNotFound, memoID)
	})
	if err != nil {
		return VoiceMemo{}, err
	}
	return updated, nil
}

func (s *Service) moodEntryFor(memo VoiceMemo) MoodEntry {
	return MoodEntry{
		ID:          util.NewID("mood"),
		VoiceMemoID: memo.ID,
		Mood:        memo.Analysis.Mood,
		Valence:     memo.Analysis.Valence,
		Arousal:     memo.Analysis.Arousal,
		RecordedAt:  s.now(),
	}
}

// ShareVoiceMemo appends the memo, encrypted under the voiceThread key, to
// the shared document's voice thread.
func (s *Service) ShareVoiceMemo(ctx context.Context, denID, memoID string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	memo, err := s.findMemo(den, memoID)
	if err != nil {
		return err
	}
	key, err := s.namespaceKey(nskeys.NamespaceVoiceThread)
	if err != nil {
		return err
	}
	blob, err := blobcipher.EncryptJSON(key, memo)
	if err != nil {
		return err
	}
	return den.UpdateShared(func(tx *crdt.Tx) error {
		tx.ListAppend(nskeys.NamespaceVoiceThread, blob)
		return nil
	})
}

func (s *Service) findMemo(den *denstore.Den, memoID string) (VoiceMemo, error) {
	for _, elem := range den.VoiceMemos().Slice() {
		var memo VoiceMemo
		if err := json.Unmarshal(elem.Value, &memo); err != nil {
			return VoiceMemo{}, fmt.Errorf("decode voice memo: %w", err)
		}
		if memo.ID == memoID {
			return memo, nil
		}
	}
	return VoiceMemo{}, fmt.Errorf("%w: voice memo %q", ErrNotFound, memoID)
}

// ListVoiceMemos returns every memo, newest-first by creation time.
func (s *Service) ListVoiceMemos(ctx context.Context, denID string) ([]VoiceMemo, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	elems := den.VoiceMemos().Slice()
	memos := make([]VoiceMemo, 0, len(elems))
	for _, elem := range elems {
		var memo VoiceMemo
		if err := json.Unmarshal(elem.Value, &memo); err != nil {
			return nil, fmt.Errorf("decode voice memo: %w", err)
		}
		memos = append(memos, memo)
	}
	sort.SliceStable(memos, func(i, j int) bool {
		return memos[i].CreatedAt.After(memos[j].CreatedAt)
	})
	return memos, nil
}

// ListMoodJournal returns the journal oldest-first, its natural append order.
func (s *Service) ListMoodJournal(ctx context.Context, denID string) ([]MoodEntry, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	elems := den.MoodJournal().Slice()
	entries := make([]MoodEntry, 0, len(elems))
	for _, elem := range elems {
		var entry MoodEntry
		if err := json.Unmarshal(elem.Value, &entry); err != nil {
			return nil, fmt.Errorf("decode mood entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
