package content

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// UpsertPresence records that a visitor is connected. A reconnecting visitor
// keeps their original ConnectedAt; LastSeenAt is always refreshed. Presence
// lives only in memory: a stale entry is never grounds for rejecting a
// reconnect.
func (s *Service) UpsertPresence(ctx context.Context, denID string, info PresenceInfo) (PresenceInfo, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return PresenceInfo{}, err
	}
	now := s.now()
	info.LastSeenAt = now
	err = den.UpdateShared(func(tx *crdt.Tx) error {
		var existing PresenceInfo
		ok, err := tx.MapGet(nskeys.NamespacePresence, info.VisitorID, &existing)
		if err != nil {
			return err
		}
		if ok {
			info.ConnectedAt = existing.ConnectedAt
		} else if info.ConnectedAt.IsZero() {
			info.ConnectedAt = now
		}
		tx.MapSet(nskeys.NamespacePresence, info.VisitorID, info)
		return nil
	})
	if err != nil {
		return PresenceInfo{}, err
	}
	return info, nil
}

// ListPresence returns the currently known visitors, sorted by visitor id.
func (s *Service) ListPresence(ctx context.Context, denID string) ([]PresenceInfo, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	snap := den.Presence().Snapshot()
	infos := make([]PresenceInfo, 0, len(snap))
	for id, raw := range snap {
		var info PresenceInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("decode presence for %q: %w", id, err)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].VisitorID < infos[j].VisitorID })
	return infos, nil
}

// RemovePresence drops a visitor's entry, typically on disconnect. Removing
// an absent visitor is a no-op.
func (s *Service) RemovePresence(ctx context.Context, denID, visitorID string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	return den.UpdateShared(func(tx *crdt.Tx) error {
		tx.MapDelete(nskeys.NamespacePresence, visitorID)
		return nil
	})
}
