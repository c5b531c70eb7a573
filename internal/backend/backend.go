package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/internal/storage/memory"
	"github.com/passgate/passgate/internal/storage/mongodb"
	"github.com/passgate/passgate/internal/storage/redisstore"
	"github.com/passgate/passgate/pkg/config"
)

// Type defines the type of identity storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
)

// New creates a storage backend based on the configuration. The session
// store can be overridden independently (e.g. Redis sessions over a
// MongoDB identity store).
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	var base storage.Store

	switch Type(cfg.Storage.Type) {
	case TypeMemory, "":
		base = memory.NewStore()

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		base = store

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Session.Store == "redis" {
		sessions, err := redisstore.NewSessionStore(&cfg.Session.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis session store: %w", err)
		}
		return &composite{identities: base, sessions: sessions}, nil
	}

	return base, nil
}

// composite pairs an identity backend with a separately hosted session store.
type composite struct {
	identities storage.Store
	sessions   *redisstore.SessionStore
}

func (c *composite) Identities() storage.IdentityStore { return c.identities.Identities() }
func (c *composite) Sessions() storage.SessionStore    { return c.sessions }

func (c *composite) Ping(ctx context.Context) error {
	if err := c.identities.Ping(ctx); err != nil {
		return err
	}
	return c.sessions.Ping(ctx)
}

func (c *composite) Close() error {
	err := c.identities.Close()
	if cerr := c.sessions.Close(); err == nil {
		err = cerr
	}
	return err
}
