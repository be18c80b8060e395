package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnavailable signals that the shared medium cannot be reached. Callers
// treat it as "no cross-instance coordination available", never as fatal.
var ErrUnavailable = errors.New("shared storage unavailable")

// Event types delivered over the cross-instance channel. Explicit intent
// signals, so receivers react to "log out now" instead of re-deriving intent
// from a storage diff.
const (
	EventSessionUpdated  = "session-updated"
	EventCrossTabLogout  = "cross-tab-logout"
	EventSessionConflict = "session-conflict"
)

type Event struct {
	Type      string          `bson:"type" json:"type"`
	TabID     string          `bson:"tab_id" json:"tab_id"` // originating instance
	Payload   json.RawMessage `bson:"payload,omitempty" json:"payload,omitempty"`
	Timestamp time.Time       `bson:"timestamp" json:"timestamp"`
}

// Backend is the shared key/value medium plus the broadcast channel between
// instances. Keys are opaque; callers namespace them. A zero TTL means the
// entry does not expire.
type Backend interface {
	Name() string

	// Get returns nil, nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes only when the key is absent; it is the compare-and-set
	// primitive the lock coordinator builds on.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)

	Publish(ctx context.Context, event Event) error

	// Subscribe delivers events published by any instance, including this
	// one. The returned cancel func tears the subscription down; the channel
	// closes afterwards.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)

	Close() error
}
