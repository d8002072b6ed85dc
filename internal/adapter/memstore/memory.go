package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

var _ port.IndexStore = (*MemoryStore)(nil)

// MemoryStore is a process-local passage store. Scan works on a snapshot, so
// callbacks may call back into the store.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]map[int]domain.Passage
	dimension   int
	fingerprint *domain.EmbeddingFingerprint
	closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[int]domain.Passage),
	}
}

func (s *MemoryStore) InsertBatch(ctx context.Context, passages []domain.Passage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStorageUnavailable
	}

	dimension := s.dimension
	for _, p := range passages {
		if err := p.Validate(); err != nil {
			return err
		}
		if dimension == 0 {
			dimension = len(p.Vector)
		}
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: vector dimension mismatch for %s: expected %d, got %d",
				domain.ErrWriteFailed, p.Key(), dimension, len(p.Vector))
		}
	}

	s.dimension = dimension
	for _, p := range passages {
		doc, ok := s.docs[p.DocumentID]
		if !ok {
			doc = make(map[int]domain.Passage)
			s.docs[p.DocumentID] = doc
		}
		p.Vector = append([]float32(nil), p.Vector...)
		doc[p.Ordinal] = p
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, domain.ErrStorageUnavailable
	}

	removed := len(s.docs[documentID])
	delete(s.docs, documentID)
	return removed, nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(domain.Passage) error) error {
	passages, err := s.snapshot()
	if err != nil {
		return err
	}
	for _, p := range passages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) snapshot() ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStorageUnavailable
	}

	passages := make([]domain.Passage, 0, len(s.docs))
	for _, doc := range s.docs {
		for _, p := range doc {
			passages = append(passages, p)
		}
	}
	sort.Slice(passages, func(i, j int) bool {
		if passages[i].DocumentID != passages[j].DocumentID {
			return passages[i].DocumentID < passages[j].DocumentID
		}
		return passages[i].Ordinal < passages[j].Ordinal
	})
	return passages, nil
}

func (s *MemoryStore) EmbeddingFingerprint(ctx context.Context) (domain.EmbeddingFingerprint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.EmbeddingFingerprint{}, false, domain.ErrStorageUnavailable
	}
	if s.fingerprint == nil {
		return domain.EmbeddingFingerprint{}, false, nil
	}
	return *s.fingerprint, true, nil
}

func (s *MemoryStore) SetEmbeddingFingerprint(ctx context.Context, fp domain.EmbeddingFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStorageUnavailable
	}
	s.fingerprint = &fp
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStorageUnavailable
	}
	s.docs = make(map[string]map[int]domain.Passage)
	s.dimension = 0
	s.fingerprint = nil
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
