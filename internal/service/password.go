package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
)

// PasswordChecker reports whether a username/password pair is valid. It
// answers the same way for unknown usernames and wrong passwords.
type PasswordChecker interface {
	Check(ctx context.Context, username, password string) (bool, error)
}

// dummyHash is compared against when no stored hash exists, so lookups cost
// the same whether or not the username is known.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// BcryptChecker checks passwords against bcrypt hashes stored on the
// identity record.
type BcryptChecker struct {
	store storage.Store
}

// NewBcryptChecker creates a new BcryptChecker
func NewBcryptChecker(store storage.Store) *BcryptChecker {
	return &BcryptChecker{store: store}
}

// Check compares the password against the identity's stored hash.
func (c *BcryptChecker) Check(ctx context.Context, username, password string) (bool, error) {
	var identity *domain.Identity

	identity, err := c.store.Identities().GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	hash := dummyHash
	known := false
	if identity != nil && identity.PasswordHash != nil {
		hash = []byte(*identity.PasswordHash)
		known = true
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	return known && err == nil, nil
}

// HashPassword produces a bcrypt hash suitable for Identity.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
