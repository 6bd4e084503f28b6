package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/shared"
)

// Repository persists sessions. Rows are created once, mutated only by
// revoke, and purged by the background reaper rather than by this package.
type Repository interface {
	Create(ctx context.Context, sess Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
}

// PGRepository is the PostgreSQL-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new session row.
func (r *PGRepository) Create(ctx context.Context, sess Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.IssuedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// FindByTokenHash looks up a session by its token hash. The lookup is a
// single read and never blocks on writers.
func (r *PGRepository) FindByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	var sess Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at
		FROM sessions WHERE token_hash = $1`, tokenHash).
		Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("session: find: %w", err)
	}
	return sess, nil
}

// PurgeBefore deletes sessions that expired or were revoked before cutoff.
// Live sessions are never touched regardless of the cutoff.
func (r *PGRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Revoke stamps revoked_at on a live session. Already-revoked rows are left
// untouched so the original revocation time survives.
func (r *PGRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash, at)
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}
