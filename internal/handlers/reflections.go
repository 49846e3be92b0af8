package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/logger"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/validation"
)

// ReflectionHandler serves the reflection routes.
type ReflectionHandler struct {
	repo   database.ReflectionRepositoryInterface
	logger *zap.Logger
}

// NewReflectionHandler creates a new reflection handler.
func NewReflectionHandler(repo database.ReflectionRepositoryInterface, log *zap.Logger) *ReflectionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReflectionHandler{repo: repo, logger: log}
}

// RegisterRoutes registers reflection routes on a router already prefixed
// with /reflections.
func (h *ReflectionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.CreateReflection).Methods(http.MethodPost)
	r.HandleFunc("/{userId}", h.ListReflections).Methods(http.MethodGet)
	r.HandleFunc("/{userId}/{reflectionId}", h.UpdateReflection).Methods(http.MethodPatch)
}

// CreateReflection stores a reflection and echoes it back.
func (h *ReflectionHandler) CreateReflection(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReflectionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Website = strings.TrimSpace(req.Website)
	req.Reflection = validation.SanitizeText(req.Reflection)

	var missing []string
	if req.UserID == "" {
		missing = append(missing, "userId")
	}
	if req.Website == "" {
		missing = append(missing, "website")
	}
	if req.Reflection == "" {
		missing = append(missing, "reflection")
	}
	if len(missing) > 0 {
		respondJSONError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if !validateBody(w, req) {
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}
	refl := &models.Reflection{
		UserID:     req.UserID,
		Website:    req.Website,
		Reflection: req.Reflection,
		AIResponse: req.AIResponse,
		Timestamp:  ts,
	}
	if err := h.repo.Create(r.Context(), refl); err != nil {
		h.logger.Error("reflection_create_failed",
			zap.String("user_id", logger.SanitizeUserID(req.UserID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to save reflection")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "reflection": refl})
}

// ListReflections returns the user's most recent reflections as a bare array.
func (h *ReflectionHandler) ListReflections(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, mux.Vars(r)["userId"])
	if !ok {
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	list, err := h.repo.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("reflection_list_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to retrieve reflections")
		return
	}
	if list == nil {
		list = []*models.Reflection{}
	}
	respondJSON(w, http.StatusOK, list)
}

// UpdateReflection applies helpful / proceeded flags to one reflection.
func (h *ReflectionHandler) UpdateReflection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, ok := userIDParam(w, vars["userId"])
	if !ok {
		return
	}
	reflectionID := strings.TrimSpace(vars["reflectionId"])
	if reflectionID == "" {
		respondJSONError(w, http.StatusBadRequest, "Missing userId or reflectionId")
		return
	}

	var req models.UpdateReflectionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	refl, err := h.repo.Update(r.Context(), userID, reflectionID, req)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		respondJSONError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, database.ErrReflectionNotFound):
		respondJSONError(w, http.StatusNotFound, "Reflection not found")
		return
	case err != nil:
		h.logger.Error("reflection_update_failed",
			zap.String("user_id", logger.SanitizeUserID(userID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Failed to update reflection")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "reflection": refl})
}

// parseLimit reads the limit query parameter. Missing or invalid values give
// DefaultListLimit; larger values are capped at MaxListLimit.
func parseLimit(raw string) int {
	if raw == "" {
		return DefaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
