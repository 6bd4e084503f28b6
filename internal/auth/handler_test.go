package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/session"
)

func newTestRouter(t *testing.T) (chi.Router, *session.Manager) {
	t.Helper()
	svc, sessions := newTestService(t)
	handler := NewHandler(nil, svc, time.Hour)

	passthrough := func(next http.Handler) http.Handler { return next }
	r := chi.NewRouter()
	handler.MountRoutes(r, passthrough, passthrough)
	return r, sessions
}

func TestLoginEndpointIssuesToken(t *testing.T) {
	router, sessions := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"admin@example.com","password":"correct horse"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var body loginResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, int64(3600), body.ExpiresIn)

	userID, err := sessions.ValidateSession(req.Context(), body.Token)
	require.NoError(t, err)
	require.Equal(t, int64(1), userID)
}

func TestLoginEndpointRejectsMissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":" "}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), `"field":"email"`)
	require.Contains(t, res.Body.String(), `"field":"password"`)
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"admin@example.com","password":"wrong"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutEndpointRevokesSession(t *testing.T) {
	router, sessions := newTestRouter(t)

	loginReq := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"admin@example.com","password":"correct horse"}`))
	loginRes := httptest.NewRecorder()
	router.ServeHTTP(loginRes, loginReq)
	require.Equal(t, http.StatusOK, loginRes.Code)

	var body loginResponse
	require.NoError(t, json.Unmarshal(loginRes.Body.Bytes(), &body))

	logoutReq := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logoutReq.Header.Set("Authorization", "Bearer "+body.Token)
	logoutRes := httptest.NewRecorder()
	router.ServeHTTP(logoutRes, logoutReq)
	require.Equal(t, http.StatusNoContent, logoutRes.Code)

	_, err := sessions.ValidateSession(logoutReq.Context(), body.Token)
	require.Error(t, err)
}
