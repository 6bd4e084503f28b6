package auth

import (
	"context"

	"github.com/aegis-admin/aegis/internal/session"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Credential is the slice of the user row the login flow needs.
type Credential struct {
	UserID       int64
	PasswordHash string
	Status       string
}

// CredentialFinder looks up login credentials by email.
type CredentialFinder interface {
	FindByEmail(ctx context.Context, email string) (Credential, error)
}

// Verifier checks a plaintext against a stored digest.
type Verifier interface {
	Verify(plaintext, digest string) bool
}

// Service wraps the login and logout flows around the session manager.
type Service struct {
	finder   CredentialFinder
	verifier Verifier
	sessions *session.Manager
}

// NewService constructs a Service.
func NewService(finder CredentialFinder, verifier Verifier, sessions *session.Manager) *Service {
	return &Service{finder: finder, verifier: verifier, sessions: sessions}
}

// Login authenticates email/password and issues a session token. Lookup
// misses, disabled accounts and bad passwords all collapse into
// ErrInvalidCredentials so callers cannot probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	cred, err := s.finder.FindByEmail(ctx, email)
	if err != nil {
		return "", shared.ErrInvalidCredentials
	}
	if cred.Status != "active" {
		return "", shared.ErrInvalidCredentials
	}
	if !s.verifier.Verify(password, cred.PasswordHash) {
		return "", shared.ErrInvalidCredentials
	}
	return s.sessions.IssueSession(ctx, cred.UserID)
}

// Logout revokes the session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.RevokeSession(ctx, token)
}
