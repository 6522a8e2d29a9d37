// Package config loads runtime configuration from an optional YAML file,
// a .env file, and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names for the collection store.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port        string
	Backend     string
	DataDir     string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	CacheTTL    time.Duration
	LockPoll    time.Duration
}

// fileConfig mirrors Config for YAML decoding; durations are strings in
// time.ParseDuration form.
type fileConfig struct {
	Port        string `yaml:"port"`
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     *int   `yaml:"redis_db"`
	CacheTTL    string `yaml:"cache_ttl"`
	LockPoll    string `yaml:"lock_poll"`
}

// Load resolves the configuration. path points at a YAML config file and may
// be empty; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     "8080",
		Backend:  BackendFile,
		DataDir:  "data",
		CacheTTL: 5 * time.Minute,
		LockPoll: 5 * time.Millisecond,
	}

	if path == "" {
		path = os.Getenv("SHOPA_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendFile, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", cfg.Backend)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.Backend != "" {
		c.Backend = fc.Backend
	}
	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.RedisDB != nil {
		c.RedisDB = *fc.RedisDB
	}
	if fc.CacheTTL != "" {
		d, err := time.ParseDuration(fc.CacheTTL)
		if err != nil {
			return fmt.Errorf("config: cache_ttl: %w", err)
		}
		c.CacheTTL = d
	}
	if fc.LockPoll != "" {
		d, err := time.ParseDuration(fc.LockPoll)
		if err != nil {
			return fmt.Errorf("config: lock_poll: %w", err)
		}
		c.LockPoll = d
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("APP_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CACHE_TTL: %w", err)
		}
		c.CacheTTL = d
	}
	if v := os.Getenv("LOCK_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LOCK_POLL: %w", err)
		}
		c.LockPoll = d
	}
	return nil
}
