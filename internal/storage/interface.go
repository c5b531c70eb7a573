package storage

import (
	"context"
	"errors"

	"github.com/passgate/passgate/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// IdentityStore defines the interface for identity storage operations.
// Usernames are case-sensitive exact-match lookup keys.
type IdentityStore interface {
	// Create creates a new identity. Returns ErrAlreadyExists if the
	// username is taken.
	Create(ctx context.Context, identity *domain.Identity) error

	// GetByID retrieves an identity by ID
	GetByID(ctx context.Context, id string) (*domain.Identity, error)

	// GetByUsername retrieves an identity by username
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)

	// Update replaces an existing identity record
	Update(ctx context.Context, identity *domain.Identity) error

	// DeleteAll removes every identity record
	DeleteAll(ctx context.Context) error
}

// SessionStore defines the interface for ephemeral authentication session
// storage. Session regeneration is a put-new-then-delete-old sequence driven
// by the caller so a failed put leaves the old session intact.
type SessionStore interface {
	// Get retrieves a live session by ID. Expired sessions are reported
	// as ErrNotFound.
	Get(ctx context.Context, id string) (*domain.AuthSession, error)

	// Put stores a new session. Returns ErrAlreadyExists if the ID is taken.
	Put(ctx context.Context, session *domain.AuthSession) error

	// Update replaces an existing session record
	Update(ctx context.Context, session *domain.AuthSession) error

	// Delete removes a session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes expired sessions and reports how many went away.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Identities() IdentityStore
	Sessions() SessionStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
