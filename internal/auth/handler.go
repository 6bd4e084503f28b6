package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-admin/aegis/internal/platform/httpx"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Handler serves the login and logout endpoints.
type Handler struct {
	logger *slog.Logger
	svc    *Service
	ttl    time.Duration
}

// NewHandler constructs a Handler. The ttl is echoed to clients so they know
// when to expect re-authentication.
func NewHandler(logger *slog.Logger, svc *Service, ttl time.Duration) *Handler {
	return &Handler{logger: logger, svc: svc, ttl: ttl}
}

// MountRoutes attaches the auth routes. Login sits behind its own rate
// limiter; logout requires an authenticated actor.
func (h *Handler) MountRoutes(r chi.Router, loginLimiter, authenticate func(http.Handler) http.Handler) {
	r.With(loginLimiter).Post("/login", h.login)
	r.With(authenticate).Post("/logout", h.logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	var fields []shared.FieldViolation
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, shared.FieldViolation{Field: "email", Rule: "required"})
	}
	if req.Password == "" {
		fields = append(fields, shared.FieldViolation{Field: "password", Rule: "required"})
	}
	if len(fields) > 0 {
		httpx.RespondError(w, &shared.ValidationError{Fields: fields})
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Token: token, ExpiresIn: int64(h.ttl.Seconds())})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if err := h.svc.Logout(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
