package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file when present.
func LoadEnv() {
	// Missing .env is fine (e.g. in production).
	_ = godotenv.Load()
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt returns an environment variable as an integer or a default.
func GetEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvBool returns an environment variable as a bool or a default.
func GetEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns an environment variable parsed as a duration
// ("30s", "2m") or a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
