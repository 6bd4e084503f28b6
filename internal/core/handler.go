package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-admin/aegis/internal/platform/httpx"
	"github.com/aegis-admin/aegis/internal/resource"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Handler exposes the generic entity surface. Every registered kind is served
// by the same handler set; per-entity behavior lives in the engine configs.
type Handler struct {
	logger *slog.Logger
	svc    *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, svc *Service) *Handler {
	return &Handler{logger: logger, svc: svc}
}

// MountRoutes attaches the entity CRUD routes. Callers mount this behind the
// authenticate and authorize middlewares.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}", h.list)
	r.Post("/{kind}", h.create)
	r.Get("/{kind}/{id}", h.read)
	r.Put("/{kind}/{id}", h.update)
	r.Patch("/{kind}/{id}", h.update)
	r.Delete("/{kind}/{id}", h.remove)
	r.Post("/{kind}/{id}/restore", h.restore)
}

// Query parameters with listing semantics; everything else is treated as an
// equality filter on the named field.
var reservedParams = map[string]struct{}{
	"page":            {},
	"per_page":        {},
	"sort":            {},
	"order":           {},
	"include_deleted": {},
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	query := resource.Query{
		SortBy:         r.URL.Query().Get("sort"),
		SortDesc:       r.URL.Query().Get("order") == "desc",
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	query.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	query.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	for key, values := range r.URL.Query() {
		if _, reserved := reservedParams[key]; reserved || len(values) == 0 {
			continue
		}
		if query.Filters == nil {
			query.Filters = make(map[string]any)
		}
		query.Filters[key] = values[0]
	}

	result, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpList, Input{Query: query}, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.List(w, result.Rows, result.Pagination)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var data resource.Row
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	result, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpCreate, Input{Data: data}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": result.Row})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input := Input{ID: id, IncludeDeleted: r.URL.Query().Get("include_deleted") == "true"}
	result, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpRead, input, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": result.Row})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var data resource.Row
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	result, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpUpdate, Input{ID: id, Data: data}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": result.Row})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpDelete, Input{ID: id}, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Perform(r.Context(), chi.URLParam(r, "kind"), OpRestore, Input{ID: id}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": result.Row})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Debug("entity operation failed",
		slog.String("kind", chi.URLParam(r, "kind")),
		slog.String("method", r.Method),
		slog.Any("error", err))
	switch {
	case errors.Is(err, resource.ErrUnknownKind):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, resource.ErrMutationNotAllowed):
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func actorID(r *http.Request) int64 {
	id, _ := shared.ActorFromContext(r.Context())
	return id
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
