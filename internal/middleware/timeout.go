package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds a request, including any upstream LLM call.
	DefaultRequestTimeout = 45 * time.Second
)

const timeoutBody = `{"error":"Request timeout"}`

// Timeout cancels the request context after timeout and answers 503.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
