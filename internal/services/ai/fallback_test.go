package ai

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestFallbackResponseNamesDomain(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := FallbackResponse("reddit.com", rng)
		if !strings.Contains(got, "reddit.com") {
			t.Fatalf("FallbackResponse() = %q, does not name the domain", got)
		}
		seen[got] = true
	}
	if len(seen) != FallbackCount {
		t.Errorf("saw %d distinct responses, want %d", len(seen), FallbackCount)
	}
}

func TestFallbackResponseNilRNG(t *testing.T) {
	t.Parallel()

	if got := FallbackResponse("x.com", nil); !strings.Contains(got, "x.com") {
		t.Errorf("FallbackResponse() = %q", got)
	}
}
