package config

import (
	"main/utils"
)

type StorageConfig struct {
	// Backend selects the shared medium: "redis", "mongo" or "memory".
	// Memory keeps the agent running with coordination disabled.
	Backend  string
	RedisURL string
}

func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:  utils.GetEnvAsString("STORAGE_BACKEND", "redis"),
		RedisURL: utils.GetEnvAsString("REDIS_URL", "redis://localhost:6379/0"),
	}
}
