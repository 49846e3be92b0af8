package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reflection is a locally recorded answer to a prompt. Only Helpful,
// Proceeded and RemoteID change after insertion, each at most once.
type Reflection struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"userId"`
	Domain        string    `json:"domain"`
	Website       string    `json:"website"`
	Prompt        string    `json:"prompt"`
	QuickResponse string    `json:"quickResponse,omitempty"`
	FreeText      string    `json:"freeText,omitempty"`
	AIResponse    string    `json:"aiResponse,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Helpful       *bool     `json:"helpful,omitempty"`
	Proceeded     *bool     `json:"proceeded,omitempty"`
	RemoteID      string    `json:"remoteId,omitempty"`
}

// Text is the user's answer: the free text, or the quick response when no
// free text was entered.
func (r Reflection) Text() string {
	if r.FreeText != "" {
		return r.FreeText
	}
	return r.QuickResponse
}

const reflectionColumns = `id, user_id, domain, website, prompt, quick_response, free_text,
	ai_response, timestamp, helpful, proceeded, remote_id`

// SaveReflection inserts r and returns its assigned id. A zero Timestamp is
// replaced by the current time.
func (s *Store) SaveReflection(ctx context.Context, r Reflection) (int64, error) {
	if r.Domain == "" {
		return 0, errors.New("reflection domain is required")
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reflections (user_id, domain, website, prompt, quick_response, free_text, ai_response, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Domain, r.Website, r.Prompt,
		nullString(r.QuickResponse), nullString(r.FreeText), nullString(r.AIResponse),
		toMillis(r.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting reflection: %w", err)
	}
	return res.LastInsertId()
}

// GetReflection returns the reflection with the given id.
func (s *Store) GetReflection(ctx context.Context, id int64) (Reflection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reflectionColumns+` FROM reflections WHERE id = ?`, id)
	r, err := scanReflection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reflection{}, ErrNotFound
	}
	return r, err
}

// ListReflections returns up to limit reflections, newest first.
func (s *Store) ListReflections(ctx context.Context, limit int) ([]Reflection, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryReflections(ctx,
		`SELECT `+reflectionColumns+` FROM reflections ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// ClosestReflection returns the reflection in domain whose timestamp is
// nearest to ts. Ties go to the lower id.
func (s *Store) ClosestReflection(ctx context.Context, domain string, ts time.Time) (Reflection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reflectionColumns+` FROM reflections
		WHERE domain = ?
		ORDER BY ABS(timestamp - ?) ASC, id ASC
		LIMIT 1`, domain, toMillis(ts))
	r, err := scanReflection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reflection{}, ErrNotFound
	}
	return r, err
}

// SetHelpful records the user's feedback on the AI response for a reflection.
func (s *Store) SetHelpful(ctx context.Context, id int64, helpful bool) error {
	return s.setOnce(ctx, id, "helpful", helpful)
}

// SetProceeded records whether the user continued to the site.
func (s *Store) SetProceeded(ctx context.Context, id int64, proceeded bool) error {
	return s.setOnce(ctx, id, "proceeded", proceeded)
}

// SetRemoteID links a local reflection to the id the API assigned to it.
func (s *Store) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	if remoteID == "" {
		return errors.New("remote id is required")
	}
	return s.setOnce(ctx, id, "remote_id", remoteID)
}

// SetAIResponse stores the coaching response shown for a reflection.
func (s *Store) SetAIResponse(ctx context.Context, id int64, response string) error {
	return s.setOnce(ctx, id, "ai_response", response)
}

// setOnce writes column only while it is still NULL. column is never user input.
func (s *Store) setOnce(ctx context.Context, id int64, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reflections SET `+column+` = ? WHERE id = ? AND `+column+` IS NULL`, value, id)
	if err != nil {
		return fmt.Errorf("updating reflection %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reflections WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrAlreadySet
}

// CountReflections returns the number of stored reflections.
func (s *Store) CountReflections(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reflections`).Scan(&n)
	return n, err
}

func (s *Store) queryReflections(ctx context.Context, query string, args ...any) ([]Reflection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reflections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Reflection
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReflection(row rowScanner) (Reflection, error) {
	var (
		r                         Reflection
		quick, free, ai, remoteID sql.NullString
		ts                        int64
		helpful, proceeded        sql.NullBool
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Domain, &r.Website, &r.Prompt, &quick, &free,
		&ai, &ts, &helpful, &proceeded, &remoteID); err != nil {
		return Reflection{}, err
	}
	r.QuickResponse = quick.String
	r.FreeText = free.String
	r.AIResponse = ai.String
	r.RemoteID = remoteID.String
	r.Timestamp = fromMillis(ts)
	if helpful.Valid {
		v := helpful.Bool
		r.Helpful = &v
	}
	if proceeded.Valid {
		v := proceeded.Bool
		r.Proceeded = &v
	}
	return r, nil
}
