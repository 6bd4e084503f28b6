package httpx

import (
	"errors"
	"net/http"

	"github.com/aegis-admin/aegis/internal/shared"
)

// RespondError maps core typed errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		conflictErr   *shared.ConflictError
		notFoundErr   *shared.NotFoundError
		authzErr      *shared.AuthorizationError
		storageErr    *shared.StorageError
	)
	switch {
	case errors.As(err, &validationErr):
		JSON(w, http.StatusBadRequest, struct {
			ProblemDetail
			Fields []shared.FieldViolation `json:"fields"`
		}{
			ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: validationErr.Error()},
			Fields:        validationErr.Fields,
		})
	case errors.As(err, &conflictErr):
		Problem(w, http.StatusConflict, "Conflict", conflictErr.Error())
	case errors.As(err, &notFoundErr):
		Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	case errors.As(err, &authzErr):
		Problem(w, http.StatusForbidden, "Forbidden", authzErr.Error())
	case errors.Is(err, shared.ErrSessionNotFound),
		errors.Is(err, shared.ErrSessionRevoked),
		errors.Is(err, shared.ErrSessionExpired),
		errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &storageErr):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
