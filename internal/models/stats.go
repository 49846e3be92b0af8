package models

import "time"

// Stats holds a user's running focus counters.
type Stats struct {
	FocusTime    int       `json:"focusTime"`
	Distractions int       `json:"distractions"`
	Streak       int       `json:"streak"`
	Productivity float64   `json:"productivity"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// StatsUpdate is the body of POST /stats/{userId}.
//
// FocusTime and Distractions are increments added to the stored totals; a
// negative increment corrects an earlier over-count. Streak and Productivity
// replace the stored values when present.
type StatsUpdate struct {
	FocusTime    *int     `json:"focusTime,omitempty"`
	Distractions *int     `json:"distractions,omitempty"`
	Streak       *int     `json:"streak,omitempty"`
	Productivity *float64 `json:"productivity,omitempty"`
}

// DefaultStats returns the zero counters reported for a user with no history.
func DefaultStats(now time.Time) Stats {
	return Stats{LastUpdated: now}
}

// Merge applies u to s and stamps LastUpdated.
func (s Stats) Merge(u StatsUpdate, now time.Time) Stats {
	if u.FocusTime != nil {
		s.FocusTime += *u.FocusTime
	}
	if u.Distractions != nil {
		s.Distractions += *u.Distractions
	}
	if u.Streak != nil {
		s.Streak = *u.Streak
	}
	if u.Productivity != nil {
		s.Productivity = *u.Productivity
	}
	s.LastUpdated = now
	return s
}

// HadActivity reports whether the counters show any focus or distraction.
func (s Stats) HadActivity() bool {
	return s.Distractions > 0 || s.FocusTime > 0
}
