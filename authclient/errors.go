package authclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend responses the controller branches on. Both are
// non-retryable: surface immediately, never back off and try again.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")

	// ErrUnauthorized is any 401-equivalent; the controller responds with a
	// full local cleanup.
	ErrUnauthorized = errors.New("unauthorized")
)

// NetworkError wraps failures where no HTTP response was received at all.
// These are the only retryable errors.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsRetryable reports whether the login/refresh retry loop should try again.
func IsRetryable(err error) bool {
	return IsNetworkError(err)
}
