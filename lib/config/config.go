// Package config loads precache configuration from environment variables.
// Both the standalone CLIs and the interposer library read the same
// variables, so loading lives in one place.
package config

import (
	"os"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

// DefaultCacheLimit bounds how much file data a single precache burst may
// pull through the page cache.
const DefaultCacheLimit = 1 << 30

// Config holds the precache runtime configuration.
type Config struct {
	// Sync runs a whole-system writeback flush before a precache burst so
	// dirty pages do not compete with the read stream.
	Sync bool
	// CacheLimit is the per-burst budget in bytes.
	CacheLimit uint64
	// ProcRoot is where the process and mount tables are read from.
	ProcRoot string

	// Logging configuration
	LogLevel string

	// OpenTelemetry configuration
	OtelEnabled           bool
	OtelEndpoint          string
	OtelServiceName       string
	OtelServiceInstanceID string
	OtelInsecure          bool
}

// Load loads configuration from environment variables.
// Automatically loads a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Sync:       getEnvBool("PRECACHE_SYNC", true),
		CacheLimit: getEnvSize("PRECACHE_LIMIT", DefaultCacheLimit),
		ProcRoot:   getEnv("PRECACHE_PROC", "/proc"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		OtelEnabled:           getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:          getEnv("OTEL_ENDPOINT", "127.0.0.1:4317"),
		OtelServiceName:       getEnv("OTEL_SERVICE_NAME", "precache"),
		OtelServiceInstanceID: getEnv("OTEL_SERVICE_INSTANCE_ID", getHostname()),
		OtelInsecure:          getEnvBool("OTEL_INSECURE", true),
	}
}

func getHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvBool treats any integer other than 0 as true, matching the historic
// PRECACHE_SYNC convention, and also accepts true/false spellings.
func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n != 0
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return fallback
}

// getEnvSize accepts either a plain byte count ("1073741824") or a
// human-readable size ("1GB", "512MB").
func getEnvSize(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n
	}
	var sz datasize.ByteSize
	if err := sz.UnmarshalText([]byte(v)); err == nil {
		return sz.Bytes()
	}
	return fallback
}
