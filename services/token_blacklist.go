package services

import (
	"context"
	"fmt"
	"time"

	"main/storage"
)

// TokenBlacklist invalidates tokens on logout for the embedded auth backend.
// Entries live in the shared storage backend under the token's remaining
// lifetime, so a blacklisted token stops working on every instance at once.
type TokenBlacklist struct {
	backend   storage.Backend
	namespace string
}

func NewTokenBlacklist(backend storage.Backend, namespace string) *TokenBlacklist {
	return &TokenBlacklist{
		backend:   backend,
		namespace: namespace,
	}
}

// BlacklistToken invalidates a single token until it would have expired
// anyway.
func (tb *TokenBlacklist) BlacklistToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("cannot blacklist empty token")
	}

	expiry, err := TokenExpiry(token)
	if err != nil {
		return fmt.Errorf("failed to read token expiry: %v", err)
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		// already expired, nothing to do
		return nil
	}

	key := fmt.Sprintf("%s:blacklist:%s", tb.namespace, token)
	if err := tb.backend.Set(ctx, key, []byte("revoked"), ttl); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether the token was revoked. Storage errors
// count as not blacklisted; the JWT expiry check still applies.
func (tb *TokenBlacklist) IsTokenBlacklisted(ctx context.Context, token string) bool {
	key := fmt.Sprintf("%s:blacklist:%s", tb.namespace, token)
	data, err := tb.backend.Get(ctx, key)
	if err != nil {
		return false
	}
	return data != nil
}
