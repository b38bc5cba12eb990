// Package security holds credential hashing for account passwords.
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
)

// bcrypt ignores input past this many bytes.
const bcryptMaxBytes = 72

// PasswordPolicy bounds the passwords accepted at sign-up and admin seeding.
type PasswordPolicy struct {
	MinLength int
	MaxBytes  int
}

// DefaultPolicy matches the sign-up form rules.
var DefaultPolicy = PasswordPolicy{MinLength: 8, MaxBytes: bcryptMaxBytes}

// Check reports which bound password violates, if any.
func (p PasswordPolicy) Check(password string) error {
	if len([]rune(password)) < p.MinLength {
		return fmt.Errorf("%w: at least %d characters required", ErrPasswordTooShort, p.MinLength)
	}
	limit := p.MaxBytes
	if limit <= 0 || limit > bcryptMaxBytes {
		limit = bcryptMaxBytes
	}
	if len(password) > limit {
		return fmt.Errorf("%w: at most %d bytes allowed", ErrPasswordTooLong, limit)
	}
	return nil
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
	// NeedsRehash reports whether a stored hash was made with different
	// parameters than the hasher now uses.
	NeedsRehash(hashedPassword string) bool
}

type BcryptHasher struct {
	cost   int
	policy PasswordPolicy
}

// NewBcryptHasher returns a hasher at cost, falling back to the bcrypt
// default when cost is out of range.
func NewBcryptHasher(cost int, policy PasswordPolicy) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost, policy: policy}
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	if err := b.policy.Check(password); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

func (b *BcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *BcryptHasher) NeedsRehash(hashedPassword string) bool {
	cost, err := bcrypt.Cost([]byte(hashedPassword))
	return err != nil || cost != b.cost
}
