package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/aegis-admin/aegis/internal/auth"
	"github.com/aegis-admin/aegis/internal/core"
	"github.com/aegis-admin/aegis/internal/session"
	"github.com/aegis-admin/aegis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Core          *core.Service
	Sessions      *session.Manager
	AuthHandler   *auth.Handler
	EntityHandler *core.Handler
	JobHandler    *jobs.Handler
}

// NewRouter constructs the chi.Router. Login and the health check are the
// only public routes; everything else requires a valid session, and the
// entity surface additionally passes the route authorization gate.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}
	loginLimiter := httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	authenticate := Authenticate(params.Sessions, params.Logger)

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r, loginLimiter, authenticate)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(Authorize(params.Core, params.Logger))
		params.EntityHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(Authorize(params.Core, params.Logger))
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
