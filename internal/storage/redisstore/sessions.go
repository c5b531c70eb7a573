// Package redisstore provides a Redis-backed session store for horizontal
// scaling. Identity records stay in the primary store; only the ephemeral
// authentication sessions live here.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// SessionStore stores authentication sessions in Redis with TTL-based expiry.
type SessionStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewSessionStore creates a Redis session store and verifies the connection.
func NewSessionStore(cfg *config.RedisConfig, logger *zap.Logger) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "passgate:session:"
	}

	return &SessionStore{
		client:    client,
		keyPrefix: prefix,
		logger:    logger.Named("redis-sessions"),
	}, nil
}

func (s *SessionStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.AuthSession, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if session.IsExpired() {
		return nil, storage.ErrNotFound
	}
	return &session, nil
}

func (s *SessionStore) Put(ctx context.Context, session *domain.AuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return storage.ErrInvalidInput
	}

	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, session *domain.AuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return storage.ErrNotFound
	}

	// SET XX keeps the update from resurrecting a deleted or expired session.
	ok, err := s.client.SetXX(ctx, s.key(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	// Redis TTLs expire sessions on their own.
	s.logger.Debug("redis session expiry handled by key TTL")
	return 0, nil
}

// Ping checks the Redis connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *SessionStore) Close() error {
	return s.client.Close()
}
