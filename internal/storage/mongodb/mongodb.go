package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig

	identities *IdentityStore
	sessions   *SessionStore
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	s := &Store{
		client:     client,
		database:   database,
		cfg:        cfg,
		identities: &IdentityStore{collection: database.Collection("identities")},
		sessions:   &SessionStore{collection: database.Collection("sessions")},
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.identities.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create identity indexes: %w", err)
	}

	// Sessions expire automatically through a TTL index; DeleteExpired
	// remains as a belt for stores without TTL support.
	_, err = s.sessions.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	return nil
}

func (s *Store) Identities() storage.IdentityStore { return s.identities }
func (s *Store) Sessions() storage.SessionStore    { return s.sessions }

// dbErr tags a driver failure so callers can match it with
// errors.Is(err, storage.ErrDatabase).
func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, storage.ErrDatabase, err)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// IdentityStore implements MongoDB identity storage
type IdentityStore struct {
	collection *mongo.Collection
}

func (s *IdentityStore) Create(ctx context.Context, identity *domain.Identity) error {
	identity.CreatedAt = time.Now()
	identity.UpdatedAt = time.Now()

	_, err := s.collection.InsertOne(ctx, identity)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return dbErr("failed to create identity", err)
	}
	return nil
}

func (s *IdentityStore) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	var identity domain.Identity
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&identity)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, dbErr("failed to get identity", err)
	}
	return &identity, nil
}

func (s *IdentityStore) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	var identity domain.Identity
	err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&identity)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, dbErr("failed to get identity", err)
	}
	return &identity, nil
}

func (s *IdentityStore) Update(ctx context.Context, identity *domain.Identity) error {
	identity.UpdatedAt = time.Now()
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": identity.ID}, identity)
	if err != nil {
		return dbErr("failed to update identity", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) DeleteAll(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return dbErr("failed to delete identities", err)
	}
	return nil
}

// SessionStore implements MongoDB session storage
type SessionStore struct {
	collection *mongo.Collection
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.AuthSession, error) {
	var session domain.AuthSession
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, dbErr("failed to get session", err)
	}
	if session.IsExpired() {
		return nil, storage.ErrNotFound
	}
	return &session, nil
}

func (s *SessionStore) Put(ctx context.Context, session *domain.AuthSession) error {
	_, err := s.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return dbErr("failed to create session", err)
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, session *domain.AuthSession) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	if err != nil {
		return dbErr("failed to update session", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return dbErr("failed to delete session", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, dbErr("failed to delete expired sessions", err)
	}
	return result.DeletedCount, nil
}
