package content

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
	"github.com/hari2309s/meerkat-sub001/internal/util"
)

// DropItem encrypts payload under the dropbox key and appends it to the
// shared document. Depositing needs only the key and write access; reading
// back is an owner-side operation.
func (s *Service) DropItem(ctx context.Context, denID, visitorID string, payload []byte) (DropboxItem, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return DropboxItem{}, err
	}
	key, err := s.namespaceKey(nskeys.NamespaceDropbox)
	if err != nil {
		return DropboxItem{}, err
	}
	blob, err := blobcipher.Encrypt(key, payload)
	if err != nil {
		return DropboxItem{}, err
	}
	item := DropboxItem{
		ID:               util.NewID("drop"),
		EncryptedPayload: blob,
		VisitorID:        visitorID,
		DroppedAt:        s.now(),
	}
	err = den.UpdateShared(func(tx *crdt.Tx) error {
		tx.ListAppend(nskeys.NamespaceDropbox, item)
		return nil
	})
	if err != nil {
		return DropboxItem{}, err
	}
	s.logger.Debug("dropbox item deposited",
		zap.String("den", denID), zap.String("visitor", visitorID), zap.String("item", item.ID))
	return item, nil
}

// ListDropboxItems returns every deposited item in drop order, payloads still
// encrypted.
func (s *Service) ListDropboxItems(ctx context.Context, denID string) ([]DropboxItem, error) {
	den, err := s.den(ctx, denID)
	if err != nil {
		return nil, err
	}
	elems := den.Dropbox().Slice()
	items := make([]DropboxItem, 0, len(elems))
	for _, elem := range elems {
		var item DropboxItem
		if err := json.Unmarshal(elem.Value, &item); err != nil {
			return nil, fmt.Errorf("decode dropbox item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// OpenDropboxItem decrypts one item's payload with the owner's dropbox key.
func (s *Service) OpenDropboxItem(item DropboxItem) ([]byte, error) {
	key, err := s.namespaceKey(nskeys.NamespaceDropbox)
	if err != nil {
		return nil, err
	}
	return blobcipher.Decrypt(key, item.EncryptedPayload)
}

// DeleteDropboxItem removes one item by id.
func (s *Service) DeleteDropboxItem(ctx context.Context, denID, itemID string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	return den.UpdateShared(func(tx *crdt.Tx) error {
		for _, elem := range tx.ListSlice(nskeys.NamespaceDropbox) {
			var item DropboxItem
			if err := json.Unmarshal(elem.Value, &item); err != nil {
				return fmt.Errorf("decode dropbox item: %w", err)
			}
			if item.ID == itemID {
				tx.ListDelete(nskeys.NamespaceDropbox, elem.ID)
				return nil
			}
		}
		return fmt.Errorf("%w: dropbox item %q", ErrNotFound, itemID)
	})
}

// ClearDropbox removes every deposited item.
func (s *Service) ClearDropbox(ctx context.Context, denID string) error {
	den, err := s.den(ctx, denID)
	if err != nil {
		return err
	}
	return den.UpdateShared(func(tx *crdt.Tx) error {
		for _, elem := range tx.ListSlice(nskeys.NamespaceDropbox) {
			tx.ListDelete(nskeys.NamespaceDropbox, elem.ID)
		}
		return nil
	})
}
