// Package mongodb implements the shared cache level on MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection holds cache entries when no collection is configured
const DefaultCollection = "discovery_cache"

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

// document is a stored cache entry. MongoDB removes documents once
// expires_at has passed.
type document[V any] struct {
	Key       string    `bson:"_id"`
	Value     V         `bson:"value"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store is a cache.Store backed by a MongoDB collection
type Store[V any] struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewStore connects to MongoDB and prepares the cache collection
func NewStore[V any](ctx context.Context, cfg *Config) (*Store[V], error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}

	s := &Store[V]{
		client:     client,
		collection: client.Database(cfg.Database).Collection(name),
		now:        time.Now,
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store[V]) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	return err
}

// Close disconnects from MongoDB
func (s *Store[V]) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store[V]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Get implements cache.Store. The TTL monitor runs periodically, so expired
// documents may still be returned; the caller compares expiresAt.
func (s *Store[V]) Get(ctx context.Context, key string) (V, time.Time, bool, error) {
	var doc document[V]
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero V
		return zero, time.Time{}, false, nil
	}
	if err != nil {
		var zero V
		return zero, time.Time{}, false, err
	}
	return doc.Value, doc.ExpiresAt, true, nil
}

// Set implements cache.Store
func (s *Store[V]) Set(ctx context.Context, key string, value V, expiresAt time.Time) error {
	doc := document[V]{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt.UTC(),
		UpdatedAt: s.now().UTC(),
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

// Delete implements cache.Store
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
