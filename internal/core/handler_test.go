package core

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/platform/httpx"
	"github.com/aegis-admin/aegis/internal/shared"
)

func newEntityRouter(t *testing.T) (chi.Router, *coreFixture) {
	t.Helper()
	fx := newCoreFixture(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, fx.service)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, fx
}

// serveAs injects the authenticated actor the way the app middleware does.
func serveAs(router chi.Router, actor int64, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestEntityCreateAndRead(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodPost, "/departments", `{"name":"finance"}`)
	require.Equal(t, http.StatusCreated, res.Code)

	var created struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	require.Equal(t, "finance", created.Data["name"])
	id := int64(created.Data["id"].(float64))

	res = serveAs(router, 1, http.MethodGet, "/departments/"+itoa(id), "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"finance"`)
}

func TestEntityCreateValidationFailure(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodPost, "/departments", `{}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), `"field":"name"`)
}

func TestEntityDeleteListRestoreCycle(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodPost, "/departments", `{"name":"finance"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	id := itoa(int64(created.Data["id"].(float64)))

	res = serveAs(router, 1, http.MethodDelete, "/departments/"+id, "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = serveAs(router, 1, http.MethodGet, "/departments", "")
	require.Equal(t, http.StatusOK, res.Code)
	var listed httpx.ListEnvelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Zero(t, listed.Pagination.Total)

	res = serveAs(router, 1, http.MethodGet, "/departments?include_deleted=true", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Equal(t, 1, listed.Pagination.Total)

	res = serveAs(router, 1, http.MethodPost, "/departments/"+id+"/restore", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = serveAs(router, 1, http.MethodGet, "/departments", "")
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Equal(t, 1, listed.Pagination.Total)
}

func TestEntityUnknownKindIs404(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodGet, "/widgets", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestEntityReadOnlyKindIs405(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodPost, "/change_histories", `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func TestEntityInvalidIDIs400(t *testing.T) {
	router, _ := newEntityRouter(t)

	res := serveAs(router, 1, http.MethodGet, "/departments/abc", "")
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
