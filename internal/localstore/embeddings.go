package localstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Embedding is a vector derived from a reflection's text.
type Embedding struct {
	ID           int64
	ReflectionID *int64
	Domain       string
	Vector       []float32
	Timestamp    time.Time
}

// SaveEmbedding inserts e and returns its id. Only the reflection link of a
// stored embedding can change, through LinkEmbedding.
func (s *Store) SaveEmbedding(ctx context.Context, e Embedding) (int64, error) {
	if len(e.Vector) == 0 {
		return 0, fmt.Errorf("embedding vector is empty")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	var reflectionID sql.NullInt64
	if e.ReflectionID != nil {
		reflectionID = sql.NullInt64{Int64: *e.ReflectionID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (reflection_id, domain, vector, timestamp)
		VALUES (?, ?, ?, ?)`,
		reflectionID, e.Domain, encodeFloat32s(e.Vector), toMillis(e.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting embedding: %w", err)
	}
	return res.LastInsertId()
}

// LinkEmbedding records reflectionID as the source of an embedding saved
// without one. It returns ErrAlreadySet when the embedding is already linked.
func (s *Store) LinkEmbedding(ctx context.Context, embeddingID, reflectionID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE embeddings SET reflection_id = ? WHERE id = ? AND reflection_id IS NULL`,
		reflectionID, embeddingID)
	if err != nil {
		return fmt.Errorf("linking embedding %d: %w", embeddingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE id = ?`, embeddingID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrAlreadySet
}

// EachEmbedding calls fn for every stored embedding in id order. The vector
// passed to fn is only valid for the duration of the call. fn must not use
// the Store, since the single connection is busy until iteration ends.
func (s *Store) EachEmbedding(ctx context.Context, fn func(Embedding) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reflection_id, domain, vector, timestamp FROM embeddings ORDER BY id`)
	if err != nil {
		return fmt.Errorf("querying embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var buf []float32
	for rows.Next() {
		var (
			e            Embedding
			reflectionID sql.NullInt64
			blob         []byte
			ts           int64
		)
		if err := rows.Scan(&e.ID, &reflectionID, &e.Domain, &blob, &ts); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return fmt.Errorf("decoding embedding %d: %w", e.ID, err)
		}
		if reflectionID.Valid {
			id := reflectionID.Int64
			e.ReflectionID = &id
		}
		e.Vector = buf
		e.Timestamp = fromMillis(ts)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountEmbeddings returns the number of stored embeddings.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32sInto(dst []float32, blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return dst, nil
}
