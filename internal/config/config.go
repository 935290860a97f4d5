// Package config loads the core's tunables from the environment. The real
// config file and its reload mechanism are external collaborators (see
// internal/status for the listener surface they drive); this package only
// owns the shape in which their values reach the core.
package config

import (
	"os"
	"strconv"
	"time"
)

type ServerConfig struct {
	Port         int
	AutoStart    bool
	CacheTimeout time.Duration
}

type CacheConfig struct {
	MemoryTTL       time.Duration
	PersistentTTL   time.Duration
	MaxMemoryEvents int
	CleanupInterval time.Duration
}

type FetchConfig struct {
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	RetryAttempts        int
	RetryDelay           time.Duration
}

type Config struct {
	Server ServerConfig
	Cache  CacheConfig
	Fetch  FetchConfig

	DatabasePath string
	LogLevel     string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:         getenvInt("SERVER_PORT", 8080),
			AutoStart:    getenv("SERVER_AUTO_START", "true") == "true",
			CacheTimeout: getenvSeconds("SERVER_CACHE_TIMEOUT", 300*time.Second),
		},
		Cache: CacheConfig{
			MemoryTTL:       getenvSeconds("CACHE_MEMORY_TTL", 300*time.Second),
			PersistentTTL:   getenvSeconds("CACHE_PERSISTENT_TTL", 3600*time.Second),
			MaxMemoryEvents: getenvInt("CACHE_MAX_MEMORY_EVENTS", 1000),
			CleanupInterval: getenvSeconds("CACHE_CLEANUP_INTERVAL", 60*time.Second),
		},
		Fetch: FetchConfig{
			MaxConcurrentFetches: getenvInt("FETCH_MAX_CONCURRENT", 8),
			FetchTimeout:         getenvSeconds("FETCH_TIMEOUT", 15*time.Second),
			RetryAttempts:        getenvInt("FETCH_RETRY_ATTEMPTS", 3),
			RetryDelay:           getenvSeconds("FETCH_RETRY_DELAY", 1*time.Second),
		},
		DatabasePath: getenv("DATABASE_PATH", "./data/events.db"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}, nil
}
