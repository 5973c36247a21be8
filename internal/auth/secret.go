package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// MaxSecretBytes is the longest secret bcrypt hashes without truncation.
const MaxSecretBytes = 72

// ErrSecretMismatch reports a secret that does not match its stored hash.
var ErrSecretMismatch = errors.New("secret mismatch")

// BcryptHasher hashes and verifies device secrets.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the given cost, falling back to
// DefaultCost when cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", fmt.Errorf("auth: secret must be %d bytes or fewer", MaxSecretBytes)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}
	return string(out), nil
}

// Compare returns nil when secret matches hash and ErrSecretMismatch when it
// does not.
func (h *BcryptHasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrSecretMismatch
	}
	return fmt.Errorf("auth: comparing secret hash: %w", err)
}
