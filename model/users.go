package model

import "time"

// User is the account the embedded auth backend authenticates against and the
// shape returned by the current-user endpoint.
type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username" validate:"required,min=4,max=20"`
	Email            string    `json:"email" validate:"required,email"`
	Password         string    `json:"-"` // argon2id salt$hash, never serialized
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	TwoFactorSecret  string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}
