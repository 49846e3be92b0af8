package ai

import (
	"fmt"
	"math/rand/v2"
)

var fallbackTemplates = []string{
	"I hear you. Before visiting %s, take a breath. What do you truly need right now?",
	"It's okay to take breaks. Consider: will %s give you the rest you're seeking?",
	"Your awareness is the first step. What if you set a mindful time limit for %s?",
	"Interesting that you're drawn to %s. What feeling are you hoping to find there?",
	"Take this moment to check in with yourself. Is %s aligned with your intentions?",
	"Sometimes we reach for %s when we need something else. What might that be?",
}

// FallbackCount is the number of distinct fallback responses.
var FallbackCount = len(fallbackTemplates)

// FallbackResponse returns a canned coaching sentence naming domain, used
// when the provider cannot be reached. A nil rng uses the global source.
func FallbackResponse(domain string, rng *rand.Rand) string {
	var i int
	if rng != nil {
		i = rng.IntN(len(fallbackTemplates))
	} else {
		i = rand.IntN(len(fallbackTemplates))
	}
	return fmt.Sprintf(fallbackTemplates[i], domain)
}
