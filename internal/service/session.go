package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// SessionService drives a login through its session states. A login starts
// with a provisional "auth" session; reaching completion regenerates it into
// a "main" session under a fresh token. The old token is invalidated by the
// regeneration, so nothing an attacker fixed into the pre-auth token
// survives into a privileged session.
type SessionService struct {
	store   storage.Store
	tokens  *TokenCodec
	logger  *zap.Logger
	authTTL time.Duration
	mainTTL time.Duration
}

// NewSessionService creates a new SessionService
func NewSessionService(store storage.Store, cfg *config.Config, logger *zap.Logger) *SessionService {
	authTTL := time.Duration(cfg.Session.AuthTTLMinutes) * time.Minute
	if authTTL <= 0 {
		authTTL = 15 * time.Minute
	}
	mainTTL := time.Duration(cfg.Session.MainTTLHours) * time.Hour
	if mainTTL <= 0 {
		mainTTL = 24 * time.Hour
	}

	return &SessionService{
		store:   store,
		tokens:  NewTokenCodec(&cfg.JWT),
		logger:  logger.Named("session-service"),
		authTTL: authTTL,
		mainTTL: mainTTL,
	}
}

// NextStatus derives the state a login moves to after the password check.
// A failed check never surfaces here: the flow proceeds to the second-factor
// stage regardless, so callers cannot distinguish an unknown user or wrong
// password from a later credential failure.
func NextStatus(policy domain.Policy, passwordCheckPassed bool) domain.AuthStatus {
	if passwordCheckPassed && policy == domain.PolicySingleFactor {
		return domain.AuthStatusComplete
	}
	return domain.AuthStatusNeedSecondFactor
}

// Begin creates a provisional auth session recording that the password
// check ran and what it returned. The result is not revealed to the caller.
func (s *SessionService) Begin(ctx context.Context, username string, passwordCheckPassed bool) (*domain.AuthSession, string, error) {
	now := time.Now()
	session := &domain.AuthSession{
		ID:                  uuid.NewString(),
		Kind:                domain.SessionKindAuth,
		Username:            username,
		PasswordCheckPassed: passwordCheckPassed,
		AuthStatus:          domain.AuthStatusNone,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.authTTL),
	}

	if err := s.store.Sessions().Put(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to store session: %w", err)
	}

	token, err := s.tokens.Issue(session.ID, session.ExpiresAt)
	if err != nil {
		_ = s.store.Sessions().Delete(ctx, session.ID)
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Debug("Auth session started", zap.String("session_id", session.ID))
	return session, token, nil
}

// Get resolves a bearer token to its live session record.
func (s *SessionService) Get(ctx context.Context, token string) (*domain.AuthSession, error) {
	sid, err := s.tokens.SessionID(token)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	return s.store.Sessions().Get(ctx, sid)
}

// Update persists a mutated session record.
func (s *SessionService) Update(ctx context.Context, session *domain.AuthSession) error {
	return s.store.Sessions().Update(ctx, session)
}

// Complete performs the terminal transition: a fresh main session is written
// first and the auth session destroyed second, so a storage failure leaves
// the old session valid and no half-transitioned state observable. The main
// session carries only the username and the completion marker.
func (s *SessionService) Complete(ctx context.Context, session *domain.AuthSession) (string, error) {
	now := time.Now()
	main := &domain.AuthSession{
		ID:         uuid.NewString(),
		Kind:       domain.SessionKindMain,
		Username:   session.Username,
		AuthStatus: domain.AuthStatusComplete,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.mainTTL),
	}

	if err := s.store.Sessions().Put(ctx, main); err != nil {
		return "", fmt.Errorf("failed to store main session: %w", err)
	}

	token, err := s.tokens.Issue(main.ID, main.ExpiresAt)
	if err != nil {
		_ = s.store.Sessions().Delete(ctx, main.ID)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	if session.Kind == domain.SessionKindAuth {
		if err := s.store.Sessions().Delete(ctx, session.ID); err != nil {
			s.logger.Warn("Failed to invalidate auth session",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	s.logger.Info("Login completed", zap.String("username", session.Username))
	return token, nil
}

// Destroy removes a session (signout).
func (s *SessionService) Destroy(ctx context.Context, session *domain.AuthSession) error {
	return s.store.Sessions().Delete(ctx, session.ID)
}
