package port

import (
	"context"

	"ragcore/internal/domain"
)

// PassageStore is durable storage of passages keyed by (document id, ordinal).
// Implementations must be safe for concurrent use.
type PassageStore interface {
	// InsertBatch writes all given passages. A failure may leave any subset written.
	InsertBatch(ctx context.Context, passages []domain.Passage) error

	// DeleteByDocument removes every passage of the document and returns how many
	// were removed. Removing an unknown document is not an error.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Scan calls fn for every stored passage in ascending (document id, ordinal)
	// order. Returning an error from fn stops the scan with that error.
	Scan(ctx context.Context, fn func(domain.Passage) error) error

	Close() error
}

// SchemaStore records which embedder produced the stored vectors.
type SchemaStore interface {
	EmbeddingFingerprint(ctx context.Context) (domain.EmbeddingFingerprint, bool, error)
	SetEmbeddingFingerprint(ctx context.Context, fp domain.EmbeddingFingerprint) error

	// Clear removes every passage and the recorded fingerprint.
	Clear(ctx context.Context) error
}

// IndexStore is a passage store that also tracks its schema.
type IndexStore interface {
	PassageStore
	SchemaStore
}
