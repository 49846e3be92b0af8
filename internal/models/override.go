package models

import "time"

// OverrideKind selects how long a user-granted allowance for a blocked domain lasts.
type OverrideKind string

const (
	OverrideTenMinutes OverrideKind = "10min"
	OverrideSession    OverrideKind = "session"
	OverrideTomorrow   OverrideKind = "tomorrow"
)

// SessionLength is how long a "session" override lasts.
const SessionLength = 12 * time.Hour

// OverrideKinds lists every valid kind.
func OverrideKinds() []OverrideKind {
	return []OverrideKind{OverrideTenMinutes, OverrideSession, OverrideTomorrow}
}

// Valid reports whether k is a known kind.
func (k OverrideKind) Valid() bool {
	switch k {
	case OverrideTenMinutes, OverrideSession, OverrideTomorrow:
		return true
	default:
		return false
	}
}

// ExpiresAt returns when an override of kind k granted at now stops applying.
// "tomorrow" expires at the next midnight in now's location.
func (k OverrideKind) ExpiresAt(now time.Time) (time.Time, bool) {
	switch k {
	case OverrideTenMinutes:
		return now.Add(10 * time.Minute), true
	case OverrideSession:
		return now.Add(SessionLength), true
	case OverrideTomorrow:
		y, m, d := now.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}
