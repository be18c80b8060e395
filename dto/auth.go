package dto

import (
	"time"

	"main/model"
)

type LoginRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6"`
	TwoFactorCode string `json:"two_factor_code"`
}

type LoginResponse struct {
	User          *model.User `json:"user"`
	Token         string      `json:"token"`
	RefreshToken  string      `json:"refresh_token"`
	SessionExpiry time.Time   `json:"session_expiry"`
}

type UserResponse struct {
	User *model.User `json:"user"`
}

type ValidateResponse struct {
	SessionValid         bool    `json:"session_valid"`
	TimeRemainingMinutes float64 `json:"time_remaining_minutes"`
}

type ExtendResponse struct {
	SessionExtended bool      `json:"session_extended"`
	SessionExpiry   time.Time `json:"session_expiry"`
}

type RefreshResponse struct {
	Token         string    `json:"token"`
	RefreshToken  string    `json:"refresh_token"`
	SessionExpiry time.Time `json:"session_expiry"`
}
