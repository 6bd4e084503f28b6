package session

import "time"

// Session is the stored form of an issued credential. Only the SHA-256 hash
// of the opaque token is persisted; the plaintext leaves IssueSession once
// and cannot be recovered afterwards.
type Session struct {
	ID        string
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the session has been revoked.
func (s Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
