package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"ragcore/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("embedding_fingerprint")
)

// SchemaVersion returns the schema version recorded in the database.
func (s *BoltPassageStore) SchemaVersion() (int, error) {
	version := 0
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &version)
	})
	return version, err
}

func (s *BoltPassageStore) migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: database created by newer version (v%d > v%d)",
			domain.ErrInvalidConfiguration, version, CurrentSchemaVersion)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}
	return nil
}

// runMigration runs a specific version migration.
func (s *BoltPassageStore) runMigration(from, to int) error {
	return s.update(func(tx *bbolt.Tx) error {
		switch {
		case from == 0 && to == 1:
			// buckets are created on open; only the version needs recording
		default:
			return fmt.Errorf("no migration path from v%d to v%d", from, to)
		}
		data, _ := json.Marshal(to)
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

func (s *BoltPassageStore) EmbeddingFingerprint(ctx context.Context) (domain.EmbeddingFingerprint, bool, error) {
	var fp domain.EmbeddingFingerprint
	found := false
	if err := ctx.Err(); err != nil {
		return fp, false, err
	}
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyFingerprint)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &fp)
	})
	return fp, found, err
}

func (s *BoltPassageStore) SetEmbeddingFingerprint(ctx context.Context, fp domain.EmbeddingFingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFingerprint, data)
	})
}

// Clear removes all passages and the embedding metadata (for rebuild).
// The schema version is kept.
func (s *BoltPassageStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketPassages); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketPassages); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyFingerprint); err != nil {
			return err
		}
		return meta.Delete(keyDimension)
	})
}
