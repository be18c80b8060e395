package utils

import (
	"os"
	"strconv"
	"time"
)

// GetEnvAsString reads key from the environment, falling back to def when
// unset.
func GetEnvAsString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// GetEnvAsInt reads key as a decimal integer. Unset or unparsable values fall
// back to def.
func GetEnvAsInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvAsUint64 reads key as an unsigned integer, for driver options that
// take uint64 (mongo pool sizes).
func GetEnvAsUint64(key string, def uint64) uint64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetEnvAsDuration reads key in time.ParseDuration syntax ("30s", "5m").
func GetEnvAsDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// GetEnvAsBool reads key in strconv.ParseBool syntax ("true", "1", "f").
func GetEnvAsBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
