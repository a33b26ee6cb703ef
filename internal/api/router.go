package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dastan/internal/models"
	"github.com/starford/dastan/internal/reader"
	"github.com/starford/dastan/internal/session"
	"github.com/starford/dastan/internal/sse"
)

// SettingsStore reads and updates the reader preferences.
type SettingsStore interface {
	Get() models.Settings
	Update(ctx context.Context, patch models.SettingsPatch) (models.Settings, error)
}

// Deps are the collaborators of the router.
type Deps struct {
	Reader   *reader.Service
	Settings SettingsStore
	Tracker  *session.Tracker
	// Broker, if non-nil, receives tool and settings events and is mounted at GET /api/events.
	Broker *sse.Broker
	// Ready reports readiness for /health/ready; nil means always ready.
	Ready func(ctx context.Context) error

	AuthEnabled bool
	AuthToken   string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all routes mounted. Unknown routes and
// wrong methods answer 404 with a JSON body.
func NewRouter(deps Deps) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	// Health checks (unauthenticated).
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.AuthEnabled, deps.AuthToken))

		r.Post("/questions", h.Questions)

		r.Route("/api", func(r chi.Router) {
			r.NotFound(notFound)
			r.MethodNotAllowed(notFound)

			// Reading tools.
			r.Post("/lookup", h.Lookup)
			r.Post("/paraphrase", h.Paraphrase)
			r.Post("/summarize", h.Summarize)
			r.Post("/analyze", h.Analyze)
			r.Post("/questions", h.Questions)
			r.Post("/timeline", h.Timeline)

			// Preferences.
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			// Introspection.
			r.Get("/tools", h.Tools)
			r.Get("/schemas/{name}", h.Schema)

			// SSE endpoint (protected by same auth middleware).
			if deps.Broker != nil {
				r.Get("/events", deps.Broker.ServeHTTP)
			}
		})
	})

	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody("not found"))
}
