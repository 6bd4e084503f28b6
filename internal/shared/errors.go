package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across services.
var (
	// ErrSessionNotFound indicates the supplied token matches no session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked indicates the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired indicates the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldViolation describes a single failed validation rule.
type FieldViolation struct {
	Field  string `json:"field"`
	Rule   string `json:"rule"`
	Detail string `json:"detail,omitempty"`
}

// ValidationError reports every violated field of a payload at once.
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// ConflictError reports a unique-constraint violation. The storage layer is
// the authority; pre-checks only produce friendlier copies of the same error.
type ConflictError struct {
	Field string
	Value any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s already in use (%v)", e.Field, e.Value)
}

// NotFoundError reports a missing (or soft-deleted) entity.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// AuthorizationError reports a denied operation, either because the actor
// lacks the required feature or because a policy denied the action.
type AuthorizationError struct {
	RequiredFeature string
	PolicyID        int64
}

func (e *AuthorizationError) Error() string {
	if e.PolicyID != 0 {
		return fmt.Sprintf("denied by policy %d", e.PolicyID)
	}
	if e.RequiredFeature != "" {
		return fmt.Sprintf("missing required feature %q", e.RequiredFeature)
	}
	return "denied"
}

// StorageError wraps a storage failure with a transient/permanent hint so
// callers can decide whether a retry is worthwhile.
type StorageError struct {
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("storage error (%s): %v", kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
