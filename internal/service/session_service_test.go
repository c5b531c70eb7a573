package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/internal/storage/memory"
)

func TestSessionService_BeginAndGet(t *testing.T) {
	sessions := NewSessionService(memory.NewStore(), testConfig(), zap.NewNop())
	ctx := context.Background()

	session, token, err := sessions.Begin(ctx, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionKindAuth, session.Kind)
	assert.True(t, session.PasswordCheckPassed)
	assert.False(t, session.FullyAuthenticated())

	got, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
}

func TestSessionService_GetRejectsInvalidToken(t *testing.T) {
	sessions := NewSessionService(memory.NewStore(), testConfig(), zap.NewNop())

	_, err := sessions.Get(context.Background(), "garbage")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionService_CompleteRegeneratesSession(t *testing.T) {
	sessions := NewSessionService(memory.NewStore(), testConfig(), zap.NewNop())
	ctx := context.Background()

	session, authToken, err := sessions.Begin(ctx, "alice", true)
	require.NoError(t, err)

	mainToken, err := sessions.Complete(ctx, session)
	require.NoError(t, err)
	assert.NotEqual(t, authToken, mainToken)

	// the pre-transition token no longer resolves
	_, err = sessions.Get(ctx, authToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	main, err := sessions.Get(ctx, mainToken)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionKindMain, main.Kind)
	assert.True(t, main.FullyAuthenticated())
	assert.Equal(t, "alice", main.Username)
}

func TestSessionService_Destroy(t *testing.T) {
	sessions := NewSessionService(memory.NewStore(), testConfig(), zap.NewNop())
	ctx := context.Background()

	session, token, err := sessions.Begin(ctx, "alice", true)
	require.NoError(t, err)

	require.NoError(t, sessions.Destroy(ctx, session))

	_, err = sessions.Get(ctx, token)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// failingSessionStore rejects Put after a set number of successes.
type failingSessionStore struct {
	storage.SessionStore
	allowed int
}

func (f *failingSessionStore) Put(ctx context.Context, session *domain.AuthSession) error {
	if f.allowed <= 0 {
		return errors.New("storage unavailable")
	}
	f.allowed--
	return f.SessionStore.Put(ctx, session)
}

type failingStore struct {
	storage.Store
	sessions *failingSessionStore
}

func (f *failingStore) Sessions() storage.SessionStore {
	return f.sessions
}

func TestSessionService_CompleteFailureKeepsOldSession(t *testing.T) {
	base := memory.NewStore()
	store := &failingStore{
		Store:    base,
		sessions: &failingSessionStore{SessionStore: base.Sessions(), allowed: 1},
	}
	sessions := NewSessionService(store, testConfig(), zap.NewNop())
	ctx := context.Background()

	session, authToken, err := sessions.Begin(ctx, "alice", true)
	require.NoError(t, err)

	// the main session Put fails; the transition must not happen halfway
	_, err = sessions.Complete(ctx, session)
	require.Error(t, err)

	got, err := sessions.Get(ctx, authToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, domain.SessionKindAuth, got.Kind)
}
