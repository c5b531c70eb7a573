package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
)

var (
	// ErrDuplicateCredential means the credential ID is already registered
	// for the identity.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrCredentialNotFound means no credential with the given ID exists
	// for the identity.
	ErrCredentialNotFound = errors.New("credential not found")
)

// RegistryService manages identities and their registered credentials. An
// identity's policy is derived from its credential set: no credentials means
// password-only login, one or more means a second factor is required.
type RegistryService struct {
	store  storage.Store
	logger *zap.Logger

	// per-identity locks serialize credential mutations so concurrent
	// registrations of the same credential ID cannot both succeed
	locks sync.Map
}

// NewRegistryService creates a new RegistryService
func NewRegistryService(store storage.Store, logger *zap.Logger) *RegistryService {
	return &RegistryService{
		store:  store,
		logger: logger.Named("registry"),
	}
}

func (s *RegistryService) lockFor(identityID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(identityID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ResolveIdentity returns the identity for a username, creating an empty one
// on first sight. Resolving never reveals whether the username was known
// beforehand.
func (s *RegistryService) ResolveIdentity(ctx context.Context, username string) (*domain.Identity, error) {
	identity, err := s.store.Identities().GetByUsername(ctx, username)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	now := time.Now()
	identity = &domain.Identity{
		ID:          domain.NewIdentityID(),
		Username:    username,
		Credentials: []domain.Credential{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Identities().Create(ctx, identity); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// lost a creation race; the winner's record is authoritative
			return s.store.Identities().GetByUsername(ctx, username)
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	s.logger.Info("Identity created", zap.String("username", username))
	return identity, nil
}

// GetIdentity returns the identity with the given ID.
func (s *RegistryService) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	return s.store.Identities().GetByID(ctx, id)
}

// AddCredential registers a new credential for the identity. Registering an
// already-known credential ID fails with ErrDuplicateCredential and leaves
// the stored set unchanged.
func (s *RegistryService) AddCredential(ctx context.Context, identityID string, cred domain.Credential) error {
	mu := s.lockFor(identityID)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.store.Identities().GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	if identity.HasCredential(cred.CredentialID) {
		return ErrDuplicateCredential
	}

	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	identity.Credentials = append(identity.Credentials, cred)
	identity.UpdatedAt = time.Now()

	if err := s.store.Identities().Update(ctx, identity); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.Info("Credential registered",
		zap.String("identity_id", identityID),
		zap.String("credential_id", cred.CredentialID))
	return nil
}

// RemoveCredential deletes a credential from the identity. Removing an
// unknown credential ID is a no-op.
func (s *RegistryService) RemoveCredential(ctx context.Context, identityID, credentialID string) error {
	mu := s.lockFor(identityID)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.store.Identities().GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	kept := identity.Credentials[:0]
	removed := false
	for _, cred := range identity.Credentials {
		if cred.CredentialID == credentialID {
			removed = true
			continue
		}
		kept = append(kept, cred)
	}
	if !removed {
		return nil
	}

	identity.Credentials = kept
	identity.UpdatedAt = time.Now()

	if err := s.store.Identities().Update(ctx, identity); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	s.logger.Info("Credential removed",
		zap.String("identity_id", identityID),
		zap.String("credential_id", credentialID))
	return nil
}

// RenameCredential sets a credential's display name. The empty string is a
// valid name; display falls back to a placeholder.
func (s *RegistryService) RenameCredential(ctx context.Context, identityID, credentialID, name string) error {
	mu := s.lockFor(identityID)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.store.Identities().GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	cred := identity.Credential(credentialID)
	if cred == nil {
		return ErrCredentialNotFound
	}

	cred.Name = name
	identity.UpdatedAt = time.Now()

	return s.store.Identities().Update(ctx, identity)
}

// RecordAssertion updates a credential's bookkeeping after a successful
// assertion: sign count, clone warning, and last-used timestamp. Failures
// here are logged but never fail the login itself.
func (s *RegistryService) RecordAssertion(ctx context.Context, identityID, credentialID string, signCount uint32, cloneWarning bool) {
	mu := s.lockFor(identityID)
	mu.Lock()
	defer mu.Unlock()

	identity, err := s.store.Identities().GetByID(ctx, identityID)
	if err != nil {
		s.logger.Warn("Failed to load identity for assertion bookkeeping",
			zap.String("identity_id", identityID), zap.Error(err))
		return
	}

	cred := identity.Credential(credentialID)
	if cred == nil {
		return
	}

	cred.SignCount = signCount
	if cloneWarning {
		cred.CloneWarning = true
		s.logger.Warn("Possible cloned authenticator",
			zap.String("identity_id", identityID),
			zap.String("credential_id", credentialID))
	}
	cred.LastUsedAt = time.Now()
	identity.UpdatedAt = time.Now()

	if err := s.store.Identities().Update(ctx, identity); err != nil {
		s.logger.Warn("Failed to record assertion",
			zap.String("identity_id", identityID), zap.Error(err))
	}
}
