package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultMaxRequestSize caps reflection, stats and settings bodies. A
	// reflection and its coaching reply are at most 10000 characters each.
	DefaultMaxRequestSize int64 = 128 << 10
	// AIMaxRequestSize caps /ai bodies, which carry up to 50 retrieved memories.
	AIMaxRequestSize int64 = 1 << 20
)

// BodyLimit caps request bodies for paths under Prefix.
type BodyLimit struct {
	Prefix   string
	MaxBytes int64
}

// MaxRequestSize rejects bodies larger than the limit of the longest matching
// prefix in limits, or defaultMax when no prefix matches. Declared lengths
// are checked up front; streamed bodies fail on read with *http.MaxBytesError.
func MaxRequestSize(defaultMax int64, limits ...BodyLimit) func(http.Handler) http.Handler {
	if defaultMax <= 0 {
		defaultMax = DefaultMaxRequestSize
	}
	limitFor := func(path string) int64 {
		best, limit := -1, defaultMax
		for _, l := range limits {
			if l.MaxBytes > 0 && len(l.Prefix) > best && strings.HasPrefix(path, l.Prefix) {
				best, limit = len(l.Prefix), l.MaxBytes
			}
		}
		return limit
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := limitFor(r.URL.Path)
			if r.ContentLength > maxBytes {
				http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			defer r.Body.Close()

			next.ServeHTTP(w, r)
		})
	}
}
