package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"main/config"
	"main/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend is the alternative shared medium for deployments that already
// run MongoDB. Entries live in a TTL-indexed collection; the event channel is
// a change stream over an insert-only events collection, so it requires a
// replica set.
type MongoBackend struct {
	client *mongo.Client
	kv     *mongo.Collection
	events *mongo.Collection
}

type kvDocument struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

type eventDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Event     Event              `bson:"event"`
	CreatedAt time.Time          `bson:"created_at"`
}

func NewMongoBackend(cfg config.DatabaseConfig, namespace string) (*MongoBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(cfg.RetryWrites)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	db := client.Database(cfg.DatabaseName)
	backend := &MongoBackend{
		client: client,
		kv:     db.Collection(namespace + "_kv"),
		events: db.Collection(namespace + "_events"),
	}
	if err := backend.setupIndexes(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func (m *MongoBackend) setupIndexes(ctx context.Context) error {
	// Expired entries are swept by the TTL monitor; reads still check
	// expires_at themselves because the sweep only runs about once a minute.
	_, err := m.kv.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("kv_ttl").SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create kv TTL index: %w", err)
	}

	_, err = m.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetName("events_ttl").SetExpireAfterSeconds(3600),
	})
	if err != nil {
		return fmt.Errorf("failed to create events TTL index: %w", err)
	}
	return nil
}

func (m *MongoBackend) Name() string { return "mongo" }

func (m *MongoBackend) Get(ctx context.Context, key string) ([]byte, error) {
	timer := utils.TrackStorageOperation("get", "mongo")
	defer timer.ObserveDuration()

	var doc kvDocument
	err := m.kv.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	if doc.ExpiresAt != nil && time.Now().After(*doc.ExpiresAt) {
		return nil, nil
	}
	return doc.Value, nil
}

func (m *MongoBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	timer := utils.TrackStorageOperation("set", "mongo")
	defer timer.ObserveDuration()

	doc := kvDocument{Key: key, Value: value}
	if ttl > 0 {
		expiry := time.Now().Add(ttl)
		doc.ExpiresAt = &expiry
	}
	_, err := m.kv.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (m *MongoBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	timer := utils.TrackStorageOperation("setnx", "mongo")
	defer timer.ObserveDuration()

	doc := kvDocument{Key: key, Value: value}
	if ttl > 0 {
		expiry := time.Now().Add(ttl)
		doc.ExpiresAt = &expiry
	}

	_, err := m.kv.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to setnx %q: %w", key, err)
	}

	// The key exists, but it may be an expired entry the TTL monitor has not
	// swept yet. Replace it atomically only if it is expired.
	result, err := m.kv.ReplaceOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lt": time.Now()}},
		doc)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim %q: %w", key, err)
	}
	return result.ModifiedCount == 1, nil
}

func (m *MongoBackend) Delete(ctx context.Context, key string) error {
	timer := utils.TrackStorageOperation("delete", "mongo")
	defer timer.ObserveDuration()

	if _, err := m.kv.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (m *MongoBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	timer := utils.TrackStorageOperation("keys", "mongo")
	defer timer.ObserveDuration()

	cursor, err := m.kv.Find(ctx, bson.M{"_id": bson.M{"$regex": "^" + prefix}})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	defer cursor.Close(ctx)

	now := time.Now()
	var keys []string
	for cursor.Next(ctx) {
		var doc kvDocument
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		if doc.ExpiresAt != nil && now.After(*doc.ExpiresAt) {
			continue
		}
		keys = append(keys, doc.Key)
	}
	return keys, cursor.Err()
}

func (m *MongoBackend) Publish(ctx context.Context, event Event) error {
	_, err := m.events.InsertOne(ctx, eventDocument{
		Event:     event,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (m *MongoBackend) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": "insert"}}},
	}
	stream, err := m.events.Watch(ctx, pipeline)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	streamCtx, cancelStream := context.WithCancel(context.Background())
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for stream.Next(streamCtx) {
			var change struct {
				FullDocument eventDocument `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				log.Printf("Warning: dropping malformed event: %v", err)
				continue
			}
			select {
			case out <- change.FullDocument.Event:
			default:
				log.Printf("Warning: event subscriber falling behind, dropping %s", change.FullDocument.Event.Type)
			}
		}
	}()

	cancel := func() {
		cancelStream()
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := stream.Close(closeCtx); err != nil {
			log.Printf("Warning: failed to close change stream: %v", err)
		}
	}
	return out, cancel, nil
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
