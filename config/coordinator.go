package config

import (
	"main/utils"
	"time"
)

type CoordinatorConfig struct {
	Namespace           string
	HeartbeatInterval   time.Duration
	StalenessMultiple   int
	LockLease           time.Duration
	HealthCheckInterval time.Duration
	ResyncInterval      time.Duration
	ExpiryTolerance     time.Duration
	CountdownInterval   time.Duration
}

func LoadCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Namespace:           utils.GetEnvAsString("COORD_NAMESPACE", "sessioncoord"),
		HeartbeatInterval:   utils.GetEnvAsDuration("COORD_HEARTBEAT_INTERVAL", 10*time.Second),
		StalenessMultiple:   utils.GetEnvAsInt("COORD_STALENESS_MULTIPLE", 3),
		LockLease:           utils.GetEnvAsDuration("COORD_LOCK_LEASE", 30*time.Second),
		HealthCheckInterval: utils.GetEnvAsDuration("COORD_HEALTH_CHECK_INTERVAL", 5*time.Minute),
		ResyncInterval:      utils.GetEnvAsDuration("COORD_RESYNC_INTERVAL", 30*time.Second),
		ExpiryTolerance:     utils.GetEnvAsDuration("COORD_EXPIRY_TOLERANCE", 30*time.Second),
		CountdownInterval:   utils.GetEnvAsDuration("COORD_COUNTDOWN_INTERVAL", time.Minute),
	}
}

// StalenessWindow is how long a heartbeat stays credible. Entries older than
// this are pruned on read; the backend TTL matches it so crashed instances
// disappear on their own.
func (c CoordinatorConfig) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessMultiple) * c.HeartbeatInterval
}
