package companion

import (
	"testing"
	"time"
)

func TestFocusTracker(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		allowed []time.Duration
		blocked time.Duration
		want    int
	}{
		{name: "no allowed visit", blocked: 5 * time.Minute, want: 0},
		{name: "whole minutes", allowed: []time.Duration{0}, blocked: 7*time.Minute + 59*time.Second, want: 7},
		{name: "timer keeps first start", allowed: []time.Duration{0, 2 * time.Minute, 4 * time.Minute}, blocked: 6 * time.Minute, want: 6},
		{name: "under a minute", allowed: []time.Duration{0}, blocked: 40 * time.Second, want: 0},
		{name: "clock went back", allowed: []time.Duration{time.Minute}, blocked: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var f focusTracker
			for _, d := range tt.allowed {
				f.visitAllowed(t0.Add(d))
			}
			if got := f.visitBlocked(t0.Add(tt.blocked)); got != tt.want {
				t.Errorf("visitBlocked = %d, want %d", got, tt.want)
			}
			if got := f.visitBlocked(t0.Add(time.Hour)); got != 0 {
				t.Errorf("second visitBlocked = %d, want 0 after reset", got)
			}
		})
	}
}
