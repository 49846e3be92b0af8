package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/request"
)

// ErrorResponse is the body written when a handler panics.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ErrorHandler recovers panics as 500 {"error": "Internal server error"}. The
// panic value is echoed as message only when debug is on.
func ErrorHandler(logger *zap.Logger, debug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic_recovered",
						zap.Any("error", rec),
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("method", r.Method),
						zap.String("request_id", request.ID(r.Context())),
					)
					resp := ErrorResponse{Error: "Internal server error"}
					if debug {
						resp.Message = logpkg.SanitizeString(fmt.Sprint(rec), logpkg.MaxErrorMessageLength)
					}
					respondErrorJSON(w, r, http.StatusInternalServerError, resp, logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func respondErrorJSON(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(err),
			zap.Int("status_code", status),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}
