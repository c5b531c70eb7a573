package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// Services bundles the service layer for wiring into the HTTP surface.
type Services struct {
	Registry *RegistryService
	Sessions *SessionService
	Auth     *AuthService

	cleanup *SessionCleanupWorker
}

// NewServices constructs the service layer over a storage backend.
func NewServices(store storage.Store, cfg *config.Config, logger *zap.Logger) *Services {
	registry := NewRegistryService(store, logger)
	sessions := NewSessionService(store, cfg, logger)
	broker := NewChallengeBroker(store, cfg, logger)
	origins := NewOriginResolver(cfg)
	verifier := NewWebAuthnVerifier(cfg, logger)
	password := NewBcryptChecker(store)

	return &Services{
		Registry: registry,
		Sessions: sessions,
		Auth:     NewAuthService(registry, sessions, broker, origins, verifier, password, cfg, logger),
		cleanup:  NewSessionCleanupWorker(store, cfg, logger),
	}
}

// Start launches background workers.
func (s *Services) Start(ctx context.Context) {
	s.cleanup.Start(ctx)
}

// Stop shuts down background workers.
func (s *Services) Stop() {
	s.cleanup.Stop()
}
