package domain

import (
	"fmt"
	"strings"
)

// Passage is the atomic retrievable unit: one chunk of a source document
// together with its embedding.
type Passage struct {
	DocumentID string
	Ordinal    int
	Text       string
	Vector     []float32
}

// Key returns the unique (document, ordinal) identity of the passage.
func (p Passage) Key() string {
	return fmt.Sprintf("%s#%d", p.DocumentID, p.Ordinal)
}

type ScoredPassage struct {
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// EmbeddingFingerprint identifies the embedder that produced the vectors of a store.
// Querying a store with a different fingerprint compares incompatible vector spaces.
type EmbeddingFingerprint struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (f EmbeddingFingerprint) String() string {
	return fmt.Sprintf("%s/%d", f.Model, f.Dimension)
}

type StoreStatus struct {
	Passages    int                   `json:"passages"`
	Documents   int                   `json:"documents"`
	Fingerprint *EmbeddingFingerprint `json:"fingerprint,omitempty"`
}

// ValidateDocumentID rejects identifiers that cannot be stored as a key.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidArgument)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: document id contains a NUL byte", ErrInvalidArgument)
	}
	return nil
}

// Validate checks that the passage can be written to a store.
func (p Passage) Validate() error {
	if err := ValidateDocumentID(p.DocumentID); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if p.Ordinal < 0 {
		return fmt.Errorf("%w: negative ordinal %d for %q", ErrWriteFailed, p.Ordinal, p.DocumentID)
	}
	if p.Text == "" {
		return fmt.Errorf("%w: passage %s has no text", ErrWriteFailed, p.Key())
	}
	if len(p.Vector) == 0 {
		return fmt.Errorf("%w: passage %s has no vector", ErrWriteFailed, p.Key())
	}
	return nil
}
