package config

import (
	"main/utils"
	"time"
)

type AuthAPIConfig struct {
	BaseURL          string
	RequestTimeout   time.Duration
	LoginMaxAttempts int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

func LoadAuthAPIConfig() AuthAPIConfig {
	return AuthAPIConfig{
		BaseURL:          utils.GetEnvAsString("AUTH_API_BASE_URL", "http://localhost:8080/api/auth"),
		RequestTimeout:   utils.GetEnvAsDuration("AUTH_API_TIMEOUT", 15*time.Second),
		LoginMaxAttempts: utils.GetEnvAsInt("AUTH_LOGIN_MAX_ATTEMPTS", 3),
		BackoffBase:      utils.GetEnvAsDuration("AUTH_BACKOFF_BASE", time.Second),
		BackoffMax:       utils.GetEnvAsDuration("AUTH_BACKOFF_MAX", 30*time.Second),
	}
}
