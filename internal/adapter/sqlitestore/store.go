// Package sqlitestore provides a passage store backed by SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite" // SQLite driver

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// Ensure Store implements the interface.
var _ port.IndexStore = (*Store)(nil)

const (
	metaDimension   = "vector_dimension"
	metaFingerprint = "embedding_fingerprint"
)

// migrations are applied in order; index i brings the schema to version i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS passages (
		document_id TEXT NOT NULL,
		ordinal     INTEGER NOT NULL,
		text        TEXT NOT NULL,
		vector      BLOB NOT NULL,
		PRIMARY KEY (document_id, ordinal)
	) WITHOUT ROWID;
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// Store keeps passages in one SQLite table; vectors are little-endian float32 BLOBs.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets queries run while an ingestion is writing
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrStorageUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

func (s *Store) available() error {
	if s.closed.Load() {
		return fmt.Errorf("%w: database is closed", domain.ErrStorageUnavailable)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("%w: database created by newer version (v%d > v%d)",
			domain.ErrInvalidConfiguration, current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("applying migration %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", v+1); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", v+1, err)
		}
	}
	return nil
}

// InsertBatch writes all passages in one transaction.
func (s *Store) InsertBatch(ctx context.Context, passages []domain.Passage) error {
	if err := s.available(); err != nil {
		return err
	}
	if len(passages) == 0 {
		return ctx.Err()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dimension, err := readDimension(ctx, tx)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO passages (document_id, ordinal, text, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, ordinal) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if err := p.Validate(); err != nil {
			return err
		}
		if dimension == 0 {
			dimension = len(p.Vector)
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
				metaDimension, fmt.Sprint(dimension)); err != nil {
				return fmt.Errorf("saving dimension: %w", err)
			}
		}
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: vector dimension mismatch for %s: expected %d, got %d",
				domain.ErrWriteFailed, p.Key(), dimension, len(p.Vector))
		}

		if _, err := stmt.ExecContext(ctx, p.DocumentID, p.Ordinal, p.Text,
			float32SliceToBytes(p.Vector)); err != nil {
			return fmt.Errorf("saving passage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := s.available(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM passages WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting passages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted passages: %w", err)
	}
	return int(n), nil
}

func (s *Store) Scan(ctx context.Context, fn func(domain.Passage) error) error {
	if err := s.available(); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, ordinal, text, vector
		FROM passages
		ORDER BY document_id, ordinal
	`)
	if err != nil {
		return fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Passage
		var blob []byte
		if err := rows.Scan(&p.DocumentID, &p.Ordinal, &p.Text, &blob); err != nil {
			return fmt.Errorf("scanning passage: %w", err)
		}
		p.Vector = bytesToFloat32Slice(blob)
		if err := fn(p); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating passages: %w", err)
	}
	return nil
}

func (s *Store) EmbeddingFingerprint(ctx context.Context) (domain.EmbeddingFingerprint, bool, error) {
	var fp domain.EmbeddingFingerprint
	if err := s.available(); err != nil {
		return fp, false, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaFingerprint).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fp, false, nil
	}
	if err != nil {
		return fp, false, fmt.Errorf("reading fingerprint: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return fp, false, fmt.Errorf("decoding fingerprint: %w", err)
	}
	return fp, true, nil
}

func (s *Store) SetEmbeddingFingerprint(ctx context.Context, fp domain.EmbeddingFingerprint) error {
	if err := s.available(); err != nil {
		return err
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		metaFingerprint, string(data))
	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.available(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM passages"); err != nil {
		return fmt.Errorf("clearing passages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM meta WHERE key IN (?, ?)", metaDimension, metaFingerprint); err != nil {
		return fmt.Errorf("clearing metadata: %w", err)
	}
	return tx.Commit()
}

func readDimension(ctx context.Context, tx *sql.Tx) (int, error) {
	var dimension int
	err := tx.QueryRowContext(ctx, "SELECT CAST(value AS INTEGER) FROM meta WHERE key = ?", metaDimension).Scan(&dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return dimension, nil
}

// float32SliceToBytes converts []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
