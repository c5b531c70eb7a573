package memory

import (
	"context"
	"sync"
	"time"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	identities *IdentityStore
	sessions   *SessionStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		identities: &IdentityStore{
			byID:       make(map[string]*domain.Identity),
			byUsername: make(map[string]string),
		},
		sessions: &SessionStore{data: make(map[string]*domain.AuthSession)},
	}
}

func (s *Store) Identities() storage.IdentityStore { return s.identities }
func (s *Store) Sessions() storage.SessionStore    { return s.sessions }
func (s *Store) Close() error                      { return nil }
func (s *Store) Ping(ctx context.Context) error    { return nil }

// IdentityStore implements in-memory identity storage. Reads hand out copies
// so callers on different identities never share mutable state.
type IdentityStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Identity
	byUsername map[string]string // username -> identity ID
}

func cloneIdentity(ident *domain.Identity) *domain.Identity {
	cp := *ident
	if ident.Credentials != nil {
		cp.Credentials = make([]domain.Credential, len(ident.Credentials))
		copy(cp.Credentials, ident.Credentials)
	}
	if ident.PasswordHash != nil {
		hash := *ident.PasswordHash
		cp.PasswordHash = &hash
	}
	return &cp
}

func (s *IdentityStore) Create(ctx context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[identity.Username]; exists {
		return storage.ErrAlreadyExists
	}
	if _, exists := s.byID[identity.ID]; exists {
		return storage.ErrAlreadyExists
	}

	identity.CreatedAt = time.Now()
	identity.UpdatedAt = time.Now()
	s.byID[identity.ID] = cloneIdentity(identity)
	s.byUsername[identity.Username] = identity.ID
	return nil
}

func (s *IdentityStore) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneIdentity(identity), nil
}

func (s *IdentityStore) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byUsername[username]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneIdentity(s.byID[id]), nil
}

func (s *IdentityStore) Update(ctx context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[identity.ID]; !exists {
		return storage.ErrNotFound
	}

	identity.UpdatedAt = time.Now()
	s.byID[identity.ID] = cloneIdentity(identity)
	return nil
}

func (s *IdentityStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*domain.Identity)
	s.byUsername = make(map[string]string)
	return nil
}

// SessionStore implements in-memory session storage
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AuthSession
}

func cloneSession(sess *domain.AuthSession) *domain.AuthSession {
	cp := *sess
	if sess.PendingChallenge != nil {
		pc := *sess.PendingChallenge
		cp.PendingChallenge = &pc
	}
	return &cp
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if session.IsExpired() {
		return nil, storage.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Put(ctx context.Context, session *domain.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[session.ID]; exists {
		return storage.ErrAlreadyExists
	}

	s.data[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Update(ctx context.Context, session *domain.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[session.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id) // idempotent
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now()
	for id, session := range s.data {
		if now.After(session.ExpiresAt) {
			delete(s.data, id)
			count++
		}
	}
	return count, nil
}
