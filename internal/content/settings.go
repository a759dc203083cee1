package content

import (
	"context"
	"fmt"

	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/denstore"
)

// SetSetting stores an arbitrary JSON-serializable value under key.
func (s *Service) SetSetting(ctx context.Context, denID, key string, value any) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	return den.UpdatePrivate(func(tx *crdt.Tx) error {
		tx.MapSet(denstore.NamespaceSettings, key, value)
		return nil
	})
}

// GetSetting reads the value stored under key into out.
func (s *Service) GetSetting(ctx context.Context, denID, key string, out any) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	ok, err := den.Settings().Get(key, out)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: setting %q", ErrNotFound, key)
	}
	return nil
}

// DeleteSetting removes the value stored under key; deleting an absent key is
// an error so the caller can tell the two cases apart.
func (s *Service) DeleteSetting(ctx context.Context, denID, key string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	return den.UpdatePrivate(func(tx *crdt.Tx) error {
		ok, err := tx.MapGet(denstore.NamespaceSettings, key, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: setting %q", ErrNotFound, key)
		}
		tx.MapDelete(denstore.NamespaceSettings, key)
		return nil
	})
}
