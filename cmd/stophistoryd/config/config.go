// Package config implements the stophistoryd service config.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config holds all stophistoryd configuration.
type Config struct {
	Listen string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TTL          time.Duration
	KeyPrefix    string
	Timezone     string
	StoreTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	DegradeReads bool

	LogFormat string
	LogLevel  string
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided. Exits with status 1 on invalid values.
func ParseFlags() *Config {
	cfg := &Config{}

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8084"), "HTTP listen address")

	// Storage backend
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")

	// Cache policy
	flag.DurationVar(&cfg.TTL, "ttl", getEnvDuration("TTL", 24*time.Hour), "Entry lifetime, reset by every append")
	flag.StringVar(&cfg.KeyPrefix, "key-prefix", getEnv("KEY_PREFIX", "STOPAD"), "Store key namespace prefix")
	flag.StringVar(&cfg.Timezone, "timezone", getEnv("TIMEZONE", "UTC"), "Reference timezone for day truncation (IANA name)")
	flag.DurationVar(&cfg.StoreTimeout, "store-timeout", getEnvDuration("STORE_TIMEOUT", 2*time.Second), "Per-call store timeout")
	flag.IntVar(&cfg.MaxRetries, "max-retries", getEnvInt("MAX_RETRIES", 3), "Append retries after a write conflict")
	flag.DurationVar(&cfg.RetryBackoff, "retry-backoff", getEnvDuration("RETRY_BACKOFF", 25*time.Millisecond), "Initial backoff between conflicting appends")
	flag.BoolVar(&cfg.DegradeReads, "degrade-reads", getEnvBool("DEGRADE_READS", false), "Serve empty history instead of an error when the store is down")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	if cfg.Storage != "memory" && cfg.Storage != "redis" {
		fmt.Fprintf(os.Stderr, "Error: --storage must be memory or redis, got %q\n", cfg.Storage)
		os.Exit(1)
	}
	if cfg.TTL <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --ttl must be positive")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
