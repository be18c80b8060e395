package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"main/utils"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the primary shared medium. Key/value entries carry their
// TTL natively and the event channel rides on Redis pub/sub.
type RedisBackend struct {
	client  *redis.Client
	channel string
}

// NewRedisBackend connects and verifies the connection before returning.
func NewRedisBackend(redisURL, namespace string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisBackend{
		client:  client,
		channel: fmt.Sprintf("%s:events", namespace),
	}, nil
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	timer := utils.TrackStorageOperation("get", "redis")
	defer timer.ObserveDuration()

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return data, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	timer := utils.TrackStorageOperation("set", "redis")
	defer timer.ObserveDuration()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	timer := utils.TrackStorageOperation("setnx", "redis")
	defer timer.ObserveDuration()

	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx %q: %w", key, err)
	}
	return ok, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	timer := utils.TrackStorageOperation("delete", "redis")
	defer timer.ObserveDuration()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	timer := utils.TrackStorageOperation("keys", "redis")
	defer timer.ObserveDuration()

	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %q: %w", prefix, err)
	}
	return keys, nil
}

func (r *RedisBackend) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (r *RedisBackend) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)

	// Force the subscription to be established before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Warning: dropping malformed event: %v", err)
				continue
			}
			select {
			case out <- event:
			default:
				log.Printf("Warning: event subscriber falling behind, dropping %s", event.Type)
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("Warning: failed to close subscription: %v", err)
		}
	}
	return out, cancel, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
