package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-admin/aegis/internal/shared"
)

const tokenBytes = 32

// Manager issues, validates and revokes opaque session tokens.
type Manager struct {
	repo  Repository
	clock shared.Clock
	ttl   time.Duration
}

// NewManager constructs a Manager. The TTL must be positive so that
// expires_at always lands after issued_at.
func NewManager(repo Repository, clock shared.Clock, ttl time.Duration) (*Manager, error) {
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Manager{repo: repo, clock: clock, ttl: ttl}, nil
}

// IssueSession creates a session for userID and returns the plaintext token.
// This is the only moment the plaintext exists; storage holds its hash.
func (m *Manager) IssueSession(ctx context.Context, userID int64) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := m.clock.Now()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateSession resolves a plaintext token to its bound user ID. Failure
// modes are distinguished so the caller can report them precisely.
func (m *Manager) ValidateSession(ctx context.Context, token string) (int64, error) {
	sess, err := m.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		return 0, err
	}
	if sess.Revoked() {
		return 0, shared.ErrSessionRevoked
	}
	if sess.Expired(m.clock.Now()) {
		return 0, shared.ErrSessionExpired
	}
	return sess.UserID, nil
}

// RevokeSession marks the session revoked. Revoking an already-revoked or
// expired session is a no-op.
func (m *Manager) RevokeSession(ctx context.Context, token string) error {
	hash := HashToken(token)
	sess, err := m.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		return err
	}
	if sess.Revoked() || sess.Expired(m.clock.Now()) {
		return nil
	}
	return m.repo.Revoke(ctx, hash, m.clock.Now())
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// HashToken computes the stored form of a plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
