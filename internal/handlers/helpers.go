package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/validation"
)

const (
	// DefaultListLimit is the number of reflections returned when no limit is given.
	DefaultListLimit = 50
	// MaxListLimit caps the limit query parameter.
	MaxListLimit = 500
	// MaxUserIDLength bounds the userId path parameter.
	MaxUserIDLength = 128
)

// respondJSON writes data as the JSON body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage truncates messages before they reach a client.
func sanitizeErrorMessage(message string) string {
	return logger.SanitizeString(message, 200)
}

// respondJSONError sends {"error": message}.
func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": sanitizeErrorMessage(message)})
}

// respondOKError sends {"ok": false, "error": message}, the failure shape of the ai routes.
func respondOKError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"ok": false, "error": sanitizeErrorMessage(message)})
}

// decodeBody decodes the JSON body into dst and writes the error response
// itself when decoding fails. It reports whether the caller may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// validateBody runs the shared validator over v and writes a 400 naming the
// first failing field.
func validateBody(w http.ResponseWriter, v any) bool {
	err := validation.Validate.Struct(v)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		respondJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid field %s: failed %s", jsonFieldName(fe), fe.Tag()))
		return false
	}
	respondJSONError(w, http.StatusBadRequest, "Validation failed")
	return false
}

// jsonFieldName lower-cases the first letter of the struct field so the
// message names the JSON field.
func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	switch name {
	case "UserID":
		return "userId"
	case "AIModel":
		return "aiModel"
	case "APIKey":
		return "apiKey"
	case "AIResponse":
		return "aiResponse"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// userIDParam validates the userId path variable.
func userIDParam(w http.ResponseWriter, raw string) (string, bool) {
	userID := strings.TrimSpace(raw)
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "Missing userId")
		return "", false
	}
	if len(userID) > MaxUserIDLength {
		respondJSONError(w, http.StatusBadRequest, "Invalid userId")
		return "", false
	}
	return userID, true
}

// NotFound is the catch-all handler for unknown routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	respondJSONError(w, http.StatusNotFound, "Route not found")
}
