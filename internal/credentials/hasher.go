// ABOUTME: Salted password hashing and verification with bcrypt
// ABOUTME: Each hash embeds its own random salt; plaintext is never stored

// Package credentials hashes and verifies user passwords.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLength is the longest password bcrypt hashes without truncation.
const MaxPasswordLength = 72

// ErrInvalidPassword is returned for empty or over-long passwords.
var ErrInvalidPassword = errors.New("invalid password")

// Hasher produces and checks bcrypt password hashes.
type Hasher struct {
	cost      int
	dummyHash []byte // same cost as real hashes, compared by Burn
}

// NewHasher creates a Hasher with the given bcrypt cost. Costs outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Generated up front so the first Burn costs no more than any other
	dummy, _ := bcrypt.GenerateFromPassword([]byte("bugbook-dummy-password"), cost)
	return &Hasher{cost: cost, dummyHash: dummy}
}

// Cost returns the bcrypt cost used for new hashes.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted hash of password. Hashing the same password twice
// yields different strings, both of which verify.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := validate(password); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash.
func (h *Hasher) Verify(ctx context.Context, password, hash string) bool {
	if ctx.Err() != nil || validate(password) != nil {
		h.Burn(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn performs a comparison against a throwaway hash of the same cost, so a
// login for an unknown account takes as long as one with a wrong password.
func (h *Hasher) Burn(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}

func validate(password string) error {
	if password == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPassword)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPassword, MaxPasswordLength)
	}
	return nil
}
