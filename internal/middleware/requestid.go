package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/benvon/mentra/internal/request"
)

const maxRequestIDLength = 128

// RequestID propagates an incoming X-Request-ID or assigns a new uuid, and
// stores it in the request context and response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(request.IDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(request.IDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithID(r.Context(), id)))
	})
}
