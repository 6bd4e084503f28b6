package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error classes relevant to CRUD translation.
const (
	codeUniqueViolation = "23505"
	classConnection     = "08"
	classInsufficient   = "53"
)

// UniqueViolation reports whether err is a unique-constraint violation and,
// if so, returns the violated constraint name.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// Transient reports whether err looks retryable (connection failures,
// resource exhaustion, serialization conflicts).
func Transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 {
			class := pgErr.Code[:2]
			if class == classConnection || class == classInsufficient {
				return true
			}
		}
		// serialization_failure / deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
