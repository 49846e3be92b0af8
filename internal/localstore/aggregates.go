package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the day key format for daily aggregates.
const DateLayout = "2006-01-02"

// DateKey returns the day key for t in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// DailyAggregate holds one day's counters.
type DailyAggregate struct {
	Date             string `json:"date"`
	DistractionCount int    `json:"distractionCount"`
	FocusMinutes     int    `json:"focusMinutes"`
	ReflectionCount  int    `json:"reflectionCount"`
}

// AggregateDelta is added to a day's counters.
type AggregateDelta struct {
	Distractions int
	FocusMinutes int
	Reflections  int
}

// IsZero reports whether d would leave counters unchanged.
func (d AggregateDelta) IsZero() bool {
	return d.Distractions == 0 && d.FocusMinutes == 0 && d.Reflections == 0
}

// AddToDaily adds delta to the counters for date, creating the day if needed,
// in a single statement.
func (s *Store) AddToDaily(ctx context.Context, date string, delta AggregateDelta) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date key %q: %w", date, err)
	}
	if delta.Distractions < 0 || delta.FocusMinutes < 0 || delta.Reflections < 0 {
		return errors.New("daily aggregates only grow")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_aggregates (date, distraction_count, focus_minutes, reflection_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			distraction_count = distraction_count + excluded.distraction_count,
			focus_minutes     = focus_minutes + excluded.focus_minutes,
			reflection_count  = reflection_count + excluded.reflection_count`,
		date, delta.Distractions, delta.FocusMinutes, delta.Reflections,
	)
	if err != nil {
		return fmt.Errorf("upserting daily aggregate: %w", err)
	}
	return nil
}

// GetDaily returns the counters for date; a day with no record yields zeros.
func (s *Store) GetDaily(ctx context.Context, date string) (DailyAggregate, error) {
	agg := DailyAggregate{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT distraction_count, focus_minutes, reflection_count
		FROM daily_aggregates WHERE date = ?`, date,
	).Scan(&agg.DistractionCount, &agg.FocusMinutes, &agg.ReflectionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return agg, nil
	}
	return agg, err
}

// ListDaily returns up to limit most recent days, newest first.
func (s *Store) ListDaily(ctx context.Context, limit int) ([]DailyAggregate, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, distraction_count, focus_minutes, reflection_count
		FROM daily_aggregates ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying daily aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.Date, &a.DistractionCount, &a.FocusMinutes, &a.ReflectionCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
