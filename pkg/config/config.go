// Package config loads runtime configuration: environment variables for
// deployment knobs, YAML governance profiles for tunable thresholds.
package config

import "os"

// Config holds server configuration.
type Config struct {
	LogLevel     string
	DatabasePath string
	RedisAddr    string
	EventStream  string
	OTLPEndpoint string
	ProfilesDir  string
	TierTable    string
	BasisSecret  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("COGNIGATE_DB")
	if dbPath == "" {
		dbPath = "cognigate.db"
	}

	stream := os.Getenv("COGNIGATE_EVENT_STREAM")
	if stream == "" {
		stream = "cognigate:events"
	}

	return &Config{
		LogLevel:     logLevel,
		DatabasePath: dbPath,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		EventStream:  stream,
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		ProfilesDir:  os.Getenv("COGNIGATE_PROFILES"),
		TierTable:    os.Getenv("COGNIGATE_TIER_TABLE"),
		BasisSecret:  os.Getenv("COGNIGATE_BASIS_SECRET"),
	}
}
