package utils

import (
	"log"
	"os"
)

var (
	JWTSecretKey               string
	JWTExpirationTime          int64
	RefreshTokenExpirationTime int64
)

// InitJWT loads the signing configuration for the embedded auth backend.
// Only required when AUTH_EMBEDDED=true; the agent itself never signs tokens.
func InitJWT() {
	// For tests, use default values if environment variables aren't set
	if os.Getenv("GO_ENV") == "test" {
		if os.Getenv("JWT_SECRET_KEY") == "" {
			os.Setenv("JWT_SECRET_KEY", "test_secret_key")
		}
	}

	JWTSecretKey = os.Getenv("JWT_SECRET_KEY")
	if JWTSecretKey == "" {
		log.Fatal("JWT Secret Key not set")
	}

	JWTExpirationTime = int64(GetEnvAsInt("JWT_EXPIRATION_TIME", 3600))
	RefreshTokenExpirationTime = int64(GetEnvAsInt("REFRESH_TOKEN_EXPIRATION_TIME", 604800))
}
