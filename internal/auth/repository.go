package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/shared"
)

// PGCredentialFinder reads login credentials from PostgreSQL.
type PGCredentialFinder struct {
	pool *pgxpool.Pool
}

// NewPGCredentialFinder constructs a PGCredentialFinder.
func NewPGCredentialFinder(pool *pgxpool.Pool) *PGCredentialFinder {
	return &PGCredentialFinder{pool: pool}
}

// FindByEmail fetches the credential slice of a user row.
func (f *PGCredentialFinder) FindByEmail(ctx context.Context, email string) (Credential, error) {
	var cred Credential
	err := f.pool.QueryRow(ctx,
		`SELECT id, password_hash, status FROM users WHERE email = $1`, email).
		Scan(&cred.UserID, &cred.PasswordHash, &cred.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, shared.ErrInvalidCredentials
		}
		return Credential{}, fmt.Errorf("auth: find by email: %w", err)
	}
	return cred, nil
}
