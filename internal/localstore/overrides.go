package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/mentra/internal/models"
)

// OverrideRule temporarily allows a blocked domain.
type OverrideRule struct {
	ID        int64               `json:"id"`
	Domain    string              `json:"domain"`
	Kind      models.OverrideKind `json:"kind"`
	ExpiresAt time.Time           `json:"expiresAt"`
	CreatedAt time.Time           `json:"createdAt"`
}

// AddOverride stores a rule and returns its id.
func (s *Store) AddOverride(ctx context.Context, rule OverrideRule) (int64, error) {
	if rule.Domain == "" {
		return 0, errors.New("override domain is required")
	}
	if !rule.Kind.Valid() {
		return 0, fmt.Errorf("invalid override kind %q", rule.Kind)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO override_rules (domain, kind, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		rule.Domain, string(rule.Kind), toMillis(rule.ExpiresAt), toMillis(rule.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting override rule: %w", err)
	}
	return res.LastInsertId()
}

// ActiveOverride returns the longest-lived rule for domain that has not
// expired at now. ok is false when there is none.
func (s *Store) ActiveOverride(ctx context.Context, domain string, now time.Time) (rule OverrideRule, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain, kind, expires_at, created_at FROM override_rules
		WHERE domain = ? AND expires_at > ?
		ORDER BY expires_at DESC LIMIT 1`, domain, toMillis(now))
	rule, err = scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OverrideRule{}, false, nil
	}
	if err != nil {
		return OverrideRule{}, false, err
	}
	return rule, true, nil
}

// ListActiveOverrides returns every unexpired rule, soonest expiry first.
func (s *Store) ListActiveOverrides(ctx context.Context, now time.Time) ([]OverrideRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, kind, expires_at, created_at FROM override_rules
		WHERE expires_at > ? ORDER BY expires_at ASC, id ASC`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("querying override rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OverrideRule
	for rows.Next() {
		rule, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// DeleteExpiredOverrides removes rules whose expiry is at or before now and
// returns how many were removed.
func (s *Store) DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM override_rules WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired override rules: %w", err)
	}
	return res.RowsAffected()
}

func scanOverride(row rowScanner) (OverrideRule, error) {
	var (
		rule                 OverrideRule
		kind                 string
		expiresAt, createdAt int64
	)
	if err := row.Scan(&rule.ID, &rule.Domain, &kind, &expiresAt, &createdAt); err != nil {
		return OverrideRule{}, err
	}
	rule.Kind = models.OverrideKind(kind)
	rule.ExpiresAt = fromMillis(expiresAt)
	rule.CreatedAt = fromMillis(createdAt)
	return rule, nil
}
