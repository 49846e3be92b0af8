package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/benvon/mentra/internal/models"
)

const reflectionColumns = `id, user_id, website, reflection, ai_response, helpful, proceeded, timestamp, created_at`

// ReflectionRepository handles reflection persistence in PostgreSQL.
type ReflectionRepository struct {
	db *DB
}

// NewReflectionRepository creates a new reflection repository.
func NewReflectionRepository(db *DB) *ReflectionRepository {
	return &ReflectionRepository{db: db}
}

// Create inserts r. ID and CreatedAt are assigned when empty.
func (r *ReflectionRepository) Create(ctx context.Context, refl *models.Reflection) error {
	if refl.ID == "" {
		refl.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO reflections (id, user_id, website, reflection, ai_response, helpful, proceeded, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, refl.ID, refl.UserID, refl.Website, refl.Reflection, refl.AIResponse,
		nullBool(refl.Helpful), refl.Proceeded, refl.Timestamp,
	).Scan(&refl.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reflection: %w", err)
	}
	return nil
}

// ListByUser returns up to limit reflections for userID, newest timestamp
// first. Reflections with the same timestamp list in reverse creation order.
func (r *ReflectionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Reflection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reflectionColumns+`
		FROM reflections
		WHERE user_id = $1
		ORDER BY timestamp DESC, created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*models.Reflection, 0)
	for rows.Next() {
		refl, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		out = append(out, refl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reflections: %w", err)
	}
	return out, nil
}

// Update applies u to the reflection id owned by userID.
func (r *ReflectionRepository) Update(ctx context.Context, userID, id string, u models.UpdateReflectionRequest) (*models.Reflection, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reflections WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user reflections: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReflectionNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE reflections SET
			helpful = COALESCE($3, helpful),
			proceeded = COALESCE($4, proceeded)
		WHERE user_id = $1 AND id = $2
		RETURNING `+reflectionColumns,
		userID, id, nullBool(u.Helpful), nullBool(u.Proceeded))
	refl, err := scanReflection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReflectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update reflection: %w", err)
	}
	return refl, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReflection(row rowScanner) (*models.Reflection, error) {
	refl := &models.Reflection{}
	var helpful sql.NullBool
	if err := row.Scan(
		&refl.ID,
		&refl.UserID,
		&refl.Website,
		&refl.Reflection,
		&refl.AIResponse,
		&helpful,
		&refl.Proceeded,
		&refl.Timestamp,
		&refl.CreatedAt,
	); err != nil {
		return nil, err
	}
	if helpful.Valid {
		v := helpful.Bool
		refl.Helpful = &v
	}
	return refl, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
