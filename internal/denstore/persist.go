package denstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// Document kinds. The persistence file name is derived deterministically from
// the den id and the kind.
const (
	KindPrivate = "private"
	KindShared  = "shared"
)

var (
	bucketOps = []byte("ops")
)

// docFile is one document's persistence handle: a bbolt file holding the
// document's op journal, each op encrypted under the device key so nothing a
// user wrote is readable straight off the disk. Replaying the journal into a
// fresh document reproduces the state; journal order does not matter because
// ops commute.
type docFile struct {
	db  *bbolt.DB
	key []byte
}

// docPath derives the on-disk name for a den document. Den ids are opaque
// strings, so anything outside a conservative character set is mapped to '_'
// to keep the name a single path element.
func docPath(dir, denID, kind string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, denID)
	return filepath.Join(dir, clean+"-"+kind+".db")
}

func openDocFile(path string, key []byte) (*docFile, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open document store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOps)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init document store %s: %w", path, err)
	}
	return &docFile{db: db, key: key}, nil
}

// load reads the full journal. Called once per open, before the document is
// handed out, so an open den is always fully loaded.
func (f *docFile) load() ([]crdt.Op, error) {
	var ops []crdt.Op
	err := f.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOps).ForEach(func(_, v []byte) error {
			var blob blobcipher.EncryptedBlob
			if err := json.Unmarshal(v, &blob); err != nil {
				return fmt.Errorf("decode journaled op: %w", err)
			}
			var op crdt.Op
			if err := blobcipher.DecryptJSON(f.key, blob, &op); err != nil {
				return fmt.Errorf("decrypt journaled op: %w", err)
			}
			ops = append(ops, op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// append journals committed ops. Presence ops are skipped: presence is
// volatile session state with no durability guarantee, layered on the
// persisted substrate.
func (f *docFile) append(ops []crdt.Op) error {
	durable := ops[:0:0]
	for _, op := range ops {
		if op.Ns == nskeys.NamespacePresence {
			continue
		}
		durable = append(durable, op)
	}
	if len(durable) == 0 {
		return nil
	}
	return f.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOps)
		for _, op := range durable {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			blob, err := blobcipher.EncryptJSON(f.key, op)
			if err != nil {
				return fmt.Errorf("encrypt op: %w", err)
			}
			val, err := json.Marshal(blob)
			if err != nil {
				return fmt.Errorf("encode op: %w", err)
			}
			if err := bucket.Put(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *docFile) close() error {
	return f.db.Close()
}
