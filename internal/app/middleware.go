package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/aegis-admin/aegis/internal/core"
	"github.com/aegis-admin/aegis/internal/platform/httpx"
	"github.com/aegis-admin/aegis/internal/session"
	"github.com/aegis-admin/aegis/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// MiddlewareStack installs the outer middleware chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	globalLimit := 300
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.GlobalRateLimit > 0 {
			globalLimit = cfg.Config.GlobalRateLimit
		}
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(globalLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// Authenticate resolves the bearer token to an actor and stores it on the
// request context. Requests without a valid session never reach the handler.
func Authenticate(sessions *session.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			userID, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				logger.Debug("session validation failed", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithActor(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize gates the request on the route graph and the policy set. It runs
// after Authenticate, so a missing actor is a programming error answered 401.
func Authorize(svc *core.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			decision := svc.Authorize(r.Context(), userID, r.Method, r.URL.Path)
			if !decision.Allow {
				logger.Warn("request denied",
					slog.Int64("user_id", userID),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
