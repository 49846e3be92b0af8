package models

import "time"

// DefaultAIModel is the model name reported for users who never chose one.
const DefaultAIModel = "gpt4"

var defaultBlockedSites = []string{
	"youtube.com",
	"twitter.com",
	"instagram.com",
	"reddit.com",
	"facebook.com",
	"tiktok.com",
	"netflix.com",
	"twitch.tv",
}

// DefaultBlockedSites returns a fresh copy of the built-in distraction list.
func DefaultBlockedSites() []string {
	out := make([]string, len(defaultBlockedSites))
	copy(out, defaultBlockedSites)
	return out
}

// Settings are a user's preferences. The last write wins.
type Settings struct {
	BlockedSites  []string  `json:"blockedSites"`
	AIModel       string    `json:"aiModel"`
	APIKey        *string   `json:"apiKey"`
	Notifications bool      `json:"notifications"`
	CloudSync     bool      `json:"cloudSync"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// DefaultSettings returns the settings reported for a user with none stored.
func DefaultSettings(now time.Time) Settings {
	return Settings{
		BlockedSites:  DefaultBlockedSites(),
		AIModel:       DefaultAIModel,
		Notifications: true,
		CloudSync:     false,
		LastUpdated:   now,
	}
}

// SettingsUpdate is the body of PUT /settings/{userId}. Absent fields keep
// their stored value.
type SettingsUpdate struct {
	BlockedSites  *[]string `json:"blockedSites,omitempty" validate:"omitempty,max=500,dive,required,hostname_fragment"`
	AIModel       *string   `json:"aiModel,omitempty" validate:"omitempty,max=100"`
	APIKey        *string   `json:"apiKey,omitempty" validate:"omitempty,max=512"`
	Notifications *bool     `json:"notifications,omitempty"`
	CloudSync     *bool     `json:"cloudSync,omitempty"`
}

// Merge applies u to s and stamps LastUpdated.
func (s Settings) Merge(u SettingsUpdate, now time.Time) Settings {
	if u.BlockedSites != nil {
		sites := make([]string, len(*u.BlockedSites))
		copy(sites, *u.BlockedSites)
		s.BlockedSites = sites
	}
	if u.AIModel != nil {
		s.AIModel = *u.AIModel
	}
	if u.APIKey != nil {
		key := *u.APIKey
		s.APIKey = &key
	}
	if u.Notifications != nil {
		s.Notifications = *u.Notifications
	}
	if u.CloudSync != nil {
		s.CloudSync = *u.CloudSync
	}
	s.LastUpdated = now
	return s
}
