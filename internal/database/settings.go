package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/benvon/mentra/internal/models"
)

// SettingsRepository handles per-user settings in PostgreSQL.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings for userID or ErrNotFound.
func (r *SettingsRepository) Get(ctx context.Context, userID string) (*models.Settings, error) {
	s, err := scanSettings(r.db.QueryRowContext(ctx, selectSettings, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Update merges u over the stored settings, or over the defaults for a new
// user. The row is locked for the duration of the merge.
func (r *SettingsRepository) Update(ctx context.Context, userID string, u models.SettingsUpdate) (*models.Settings, error) {
	var merged models.Settings
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		current, err := scanSettings(tx.QueryRowContext(ctx, selectSettings+" FOR UPDATE", userID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			d := models.DefaultSettings(now)
			current = &d
		case err != nil:
			return fmt.Errorf("load settings: %w", err)
		}

		merged = current.Merge(u, now)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_settings (user_id, blocked_sites, ai_model, api_key, notifications, cloud_sync, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) DO UPDATE SET
				blocked_sites = EXCLUDED.blocked_sites,
				ai_model = EXCLUDED.ai_model,
				api_key = EXCLUDED.api_key,
				notifications = EXCLUDED.notifications,
				cloud_sync = EXCLUDED.cloud_sync,
				last_updated = EXCLUDED.last_updated
		`, userID, pq.Array(merged.BlockedSites), merged.AIModel, nullString(merged.APIKey),
			merged.Notifications, merged.CloudSync, merged.LastUpdated)
		if err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

const selectSettings = `
	SELECT blocked_sites, ai_model, api_key, notifications, cloud_sync, last_updated
	FROM user_settings WHERE user_id = $1`

func scanSettings(row *sql.Row) (*models.Settings, error) {
	s := &models.Settings{}
	var apiKey sql.NullString
	var sites pq.StringArray
	if err := row.Scan(&sites, &s.AIModel, &apiKey, &s.Notifications, &s.CloudSync, &s.LastUpdated); err != nil {
		return nil, err
	}
	s.BlockedSites = []string(sites)
	if s.BlockedSites == nil {
		s.BlockedSites = []string{}
	}
	if apiKey.Valid {
		key := apiKey.String
		s.APIKey = &key
	}
	return s, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
