package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

var (
	bucketPassages = []byte("passages")
	bucketMeta     = []byte("meta")
	keyDimension   = []byte("vector_dimension")
)

var _ port.IndexStore = (*BoltPassageStore)(nil)

// BoltPassageStore keeps passages in a single bbolt bucket. Keys are the
// document id, a NUL separator and the big-endian ordinal, so a cursor walks
// passages in (document id, ordinal) order and a document's passages are
// contiguous.
type BoltPassageStore struct {
	db *bbolt.DB
}

type storedPassage struct {
	Text   string    `json:"t"`
	Vector []float32 `json:"v"`
}

func NewBoltPassageStore(path string) (*BoltPassageStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %v", domain.ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPassages, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltPassageStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func passageKey(documentID string, ordinal int) []byte {
	key := make([]byte, 0, len(documentID)+5)
	key = append(key, documentID...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint32(key, uint32(ordinal))
}

func documentPrefix(documentID string) []byte {
	prefix := make([]byte, 0, len(documentID)+1)
	prefix = append(prefix, documentID...)
	return append(prefix, 0)
}

// splitKey relies on the fixed-width ordinal suffix: the ordinal bytes may
// themselves contain NUL, document ids never do.
func splitKey(key []byte) (string, int, error) {
	sep := len(key) - 5
	if sep < 1 || key[sep] != 0 {
		return "", 0, fmt.Errorf("malformed passage key %q", key)
	}
	return string(key[:sep]), int(binary.BigEndian.Uint32(key[sep+1:])), nil
}

func (s *BoltPassageStore) InsertBatch(ctx context.Context, passages []domain.Passage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(passages) == 0 {
		return nil
	}

	return s.update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		dimension := 0
		if data := meta.Get(keyDimension); data != nil {
			if err := json.Unmarshal(data, &dimension); err != nil {
				return fmt.Errorf("corrupt dimension record: %w", err)
			}
		}

		b := tx.Bucket(bucketPassages)
		for _, p := range passages {
			if err := validatePassage(p, dimension); err != nil {
				return err
			}
			if dimension == 0 {
				dimension = len(p.Vector)
				data, _ := json.Marshal(dimension)
				if err := meta.Put(keyDimension, data); err != nil {
					return err
				}
			}

			data, err := json.Marshal(storedPassage{Text: p.Text, Vector: p.Vector})
			if err != nil {
				return err
			}
			if err := b.Put(passageKey(p.DocumentID, p.Ordinal), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltPassageStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPassages).Cursor()
		prefix := documentPrefix(documentID)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *BoltPassageStore) Scan(ctx context.Context, fn func(domain.Passage) error) error {
	return s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPassages).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			documentID, ordinal, err := splitKey(k)
			if err != nil {
				return err
			}
			var stored storedPassage
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt passage %s#%d: %w", documentID, ordinal, err)
			}
			return fn(domain.Passage{
				DocumentID: documentID,
				Ordinal:    ordinal,
				Text:       stored.Text,
				Vector:     stored.Vector,
			})
		})
	})
}

func (s *BoltPassageStore) Close() error {
	return s.db.Close()
}

func (s *BoltPassageStore) update(fn func(tx *bbolt.Tx) error) error {
	return classify(s.db.Update(fn))
}

func (s *BoltPassageStore) view(fn func(tx *bbolt.Tx) error) error {
	return classify(s.db.View(fn))
}

func classify(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) || errors.Is(err, bbolt.ErrTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

func validatePassage(p domain.Passage, dimension int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if dimension > 0 && len(p.Vector) != dimension {
		return fmt.Errorf("%w: vector dimension mismatch for %s: expected %d, got %d",
			domain.ErrWriteFailed, p.Key(), dimension, len(p.Vector))
	}
	return nil
}
