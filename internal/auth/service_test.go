package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/session"
	"github.com/aegis-admin/aegis/internal/shared"
)

type memoryCredentials struct {
	byEmail map[string]Credential
}

func (m *memoryCredentials) FindByEmail(ctx context.Context, email string) (Credential, error) {
	cred, ok := m.byEmail[email]
	if !ok {
		return Credential{}, shared.ErrInvalidCredentials
	}
	return cred, nil
}

type memorySessionRepo struct {
	sessions map[string]session.Session
}

func (r *memorySessionRepo) Create(ctx context.Context, sess session.Session) error {
	r.sessions[sess.TokenHash] = sess
	return nil
}

func (r *memorySessionRepo) FindByTokenHash(ctx context.Context, hash string) (session.Session, error) {
	sess, ok := r.sessions[hash]
	if !ok {
		return session.Session{}, shared.ErrSessionNotFound
	}
	return sess, nil
}

func (r *memorySessionRepo) Revoke(ctx context.Context, hash string, at time.Time) error {
	sess, ok := r.sessions[hash]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	sess.RevokedAt = &at
	r.sessions[hash] = sess
	return nil
}

func newTestService(t *testing.T) (*Service, *session.Manager) {
	t.Helper()
	hasher := NewBcryptHasher(4)
	digest, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	finder := &memoryCredentials{byEmail: map[string]Credential{
		"admin@example.com":    {UserID: 1, PasswordHash: digest, Status: "active"},
		"disabled@example.com": {UserID: 2, PasswordHash: digest, Status: "disabled"},
	}}
	sessions, err := session.NewManager(&memorySessionRepo{sessions: map[string]session.Session{}}, nil, time.Hour)
	require.NoError(t, err)
	return NewService(finder, hasher, sessions), sessions
}

func TestLoginIssuesValidSession(t *testing.T) {
	svc, sessions := newTestService(t)

	token, err := svc.Login(context.Background(), "admin@example.com", "correct horse")
	require.NoError(t, err)

	userID, err := sessions.ValidateSession(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(1), userID)
}

func TestLoginFailuresCollapse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "nobody@example.com", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "admin@example.com", "wrong password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "disabled@example.com", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, "admin@example.com", "correct horse")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, token))

	_, err = sessions.ValidateSession(ctx, token)
	require.ErrorIs(t, err, shared.ErrSessionRevoked)
}

func TestHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(4)
	digest, err := hasher.Hash("s3cret-enough")
	require.NoError(t, err)
	require.True(t, hasher.Verify("s3cret-enough", digest))
	require.False(t, hasher.Verify("other", digest))
}
