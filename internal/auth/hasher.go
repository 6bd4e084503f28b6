package auth

import "golang.org/x/crypto/bcrypt"

// BcryptHasher is the credential collaborator implementation. Consumers only
// see hash/verify; the algorithm stays contained here.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher constructs a hasher. A cost below bcrypt's minimum falls
// back to the library default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

// Hash derives a digest from the plaintext.
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the digest.
func (h BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
