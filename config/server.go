package config

import (
	"main/utils"
)

type ServerConfig struct {
	ListenAddr   string
	AuthEmbedded bool
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   utils.GetEnvAsString("LISTEN_ADDR", "127.0.0.1:8745"),
		AuthEmbedded: utils.GetEnvAsBool("AUTH_EMBEDDED", false),
	}
}
