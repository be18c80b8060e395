package handler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"main/model"
	"main/services"
	"main/utils"
)

const (
	loginFailureLimit  = 5
	loginFailureWindow = time.Minute
)

// EmbeddedAuth is the development auth backend. It authenticates against a
// single user seeded from the environment so an agent can run without a real
// auth API behind it.
type EmbeddedAuth struct {
	mu           sync.Mutex
	user         *model.User
	blacklist    *services.TokenBlacklist
	failures     int
	failuresFrom time.Time
}

// NewEmbeddedAuth seeds the dev user from AUTH_EMBEDDED_EMAIL,
// AUTH_EMBEDDED_USERNAME, AUTH_EMBEDDED_PASSWORD and, optionally,
// AUTH_EMBEDDED_TOTP_SECRET.
func NewEmbeddedAuth(blacklist *services.TokenBlacklist) (*EmbeddedAuth, error) {
	password := utils.GetEnvAsString("AUTH_EMBEDDED_PASSWORD", "devpass1!")
	hashed, err := services.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to seed embedded user: %v", err)
	}

	totpSecret := utils.GetEnvAsString("AUTH_EMBEDDED_TOTP_SECRET", "")
	user := &model.User{
		ID:               1,
		Username:         utils.GetEnvAsString("AUTH_EMBEDDED_USERNAME", "dev"),
		Email:            utils.GetEnvAsString("AUTH_EMBEDDED_EMAIL", "dev@localhost"),
		Password:         hashed,
		TwoFactorEnabled: totpSecret != "",
		TwoFactorSecret:  totpSecret,
		CreatedAt:        time.Now(),
	}

	log.Printf("Embedded auth backend enabled for user %s", user.Email)
	return &EmbeddedAuth{
		user:      user,
		blacklist: blacklist,
	}, nil
}

// User returns the seeded user when the ID matches, nil otherwise.
func (e *EmbeddedAuth) User(id int64) *model.User {
	if e.user != nil && e.user.ID == id {
		return e.user
	}
	return nil
}

// rateLimited implements a crude failure window: too many bad logins in a
// short span and further attempts are refused until the window rolls over.
func (e *EmbeddedAuth) rateLimited() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Since(e.failuresFrom) > loginFailureWindow {
		e.failures = 0
		e.failuresFrom = time.Now()
	}
	return e.failures >= loginFailureLimit
}

func (e *EmbeddedAuth) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Since(e.failuresFrom) > loginFailureWindow {
		e.failures = 0
		e.failuresFrom = time.Now()
	}
	e.failures++
}

func (e *EmbeddedAuth) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
}

// sessionExpiry is the advertised session end for freshly issued tokens.
func sessionExpiry() time.Time {
	return time.Now().Add(time.Duration(utils.JWTExpirationTime) * time.Second)
}
