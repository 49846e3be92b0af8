package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/benvon/mentra/internal/models"
)

// APIPrefixes are the path prefixes the API is mounted under.
var APIPrefixes = []string{"/api/v1", "/api"}

// API groups the handlers mounted under each API prefix.
type API struct {
	Reflections *ReflectionHandler
	Stats       *StatsHandler
	Settings    *SettingsHandler
	AI          *AIHandler
	// Middleware wraps the API routes only, leaving health checks untouched.
	Middleware []mux.MiddlewareFunc
	// ScopeMiddleware wraps the routes of one rate limit scope: ScopeAI for
	// /ai and ScopeAPI for everything else.
	ScopeMiddleware map[models.RateLimitScope][]mux.MiddlewareFunc
}

// Register mounts the API under every prefix in APIPrefixes.
func (a API) Register(r *mux.Router) {
	for _, prefix := range APIPrefixes {
		api := r.PathPrefix(prefix).Subrouter()
		api.Use(a.Middleware...)
		if a.Reflections != nil {
			a.Reflections.RegisterRoutes(a.subrouter(api, "/reflections", models.ScopeAPI))
		}
		if a.Stats != nil {
			a.Stats.RegisterRoutes(a.subrouter(api, "/stats", models.ScopeAPI))
		}
		if a.Settings != nil {
			a.Settings.RegisterRoutes(a.subrouter(api, "/settings", models.ScopeAPI))
		}
		if a.AI != nil {
			a.AI.RegisterRoutes(a.subrouter(api, "/ai", models.ScopeAI))
		}
	}
}

func (a API) subrouter(api *mux.Router, prefix string, scope models.RateLimitScope) *mux.Router {
	sub := api.PathPrefix(prefix).Subrouter()
	sub.Use(a.ScopeMiddleware[scope]...)
	return sub
}

// AIPaths returns the path prefix of the /ai routes under every API prefix.
func AIPaths() []string {
	out := make([]string, 0, len(APIPrefixes))
	for _, prefix := range APIPrefixes {
		out = append(out, prefix+"/ai/")
	}
	return out
}

// RegisterRoutes mounts /, /health and /healthz.
func (h *HealthChecker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
}
