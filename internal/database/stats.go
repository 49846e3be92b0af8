package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/mentra/internal/models"
)

// StatsRepository handles per-user stats in PostgreSQL.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Get returns the stats for userID or ErrNotFound.
func (r *StatsRepository) Get(ctx context.Context, userID string) (*models.Stats, error) {
	s := &models.Stats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT focus_time, distractions, streak, productivity, last_updated
		FROM user_stats WHERE user_id = $1
	`, userID).Scan(&s.FocusTime, &s.Distractions, &s.Streak, &s.Productivity, &s.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return s, nil
}

// Apply adds the focus and distraction increments and overwrites streak and
// productivity when present, in a single upsert.
func (r *StatsRepository) Apply(ctx context.Context, userID string, u models.StatsUpdate) (*models.Stats, error) {
	now := time.Now().UTC()
	fresh := models.DefaultStats(now).Merge(u, now)

	s := &models.Stats{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_stats (user_id, focus_time, distractions, streak, productivity, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			focus_time = user_stats.focus_time + EXCLUDED.focus_time,
			distractions = user_stats.distractions + EXCLUDED.distractions,
			streak = COALESCE($7, user_stats.streak),
			productivity = COALESCE($8, user_stats.productivity),
			last_updated = EXCLUDED.last_updated
		RETURNING focus_time, distractions, streak, productivity, last_updated
	`, userID, fresh.FocusTime, fresh.Distractions, fresh.Streak, fresh.Productivity, now,
		nullInt(u.Streak), nullFloat(u.Productivity),
	).Scan(&s.FocusTime, &s.Distractions, &s.Streak, &s.Productivity, &s.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("apply stats: %w", err)
	}
	return s, nil
}

// Rollover closes the day for userID. Users without stats are left untouched
// and get ErrNotFound.
func (r *StatsRepository) Rollover(ctx context.Context, userID string) (*models.Stats, error) {
	s := &models.Stats{}
	err := r.db.QueryRowContext(ctx, `
		UPDATE user_stats SET
			streak = CASE WHEN focus_time > 0 OR distractions > 0 THEN streak + 1 ELSE streak END,
			focus_time = 0,
			distractions = 0,
			last_updated = $2
		WHERE user_id = $1
		RETURNING focus_time, distractions, streak, productivity, last_updated
	`, userID, time.Now().UTC()).Scan(&s.FocusTime, &s.Distractions, &s.Streak, &s.Productivity, &s.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rollover stats: %w", err)
	}
	return s, nil
}

// ListUserIDs returns every user with stored stats.
func (r *StatsRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM user_stats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list stats users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
