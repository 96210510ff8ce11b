// SPDX-License-Identifier: MIT

// Package config loads and validates daemon configuration.
// Precedence: environment variables > config file > defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/astralstream/resolver/internal/resolver"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Listen   string
	LogLevel string
	DataDir  string

	// Cache
	CacheBackend  string // "memory", "redis" or "none"
	CacheTTL      time.Duration
	CacheCleanup  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Fetch
	FetchTimeout time.Duration
	FetchMaxBody int64

	// API
	RateLimitRPM int

	// Playback
	PinnedTier string // "" selects adaptively from network conditions

	// History
	HistoryEnabled   bool
	HistoryRetention time.Duration
}

// FileConfig mirrors the YAML config file layout.
type FileConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`
	DataDir  string `yaml:"dataDir"`

	Cache struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
		Cleanup string `yaml:"cleanup"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Fetch struct {
		Timeout      string `yaml:"timeout"`
		MaxBodyBytes int64  `yaml:"maxBodyBytes"`
	} `yaml:"fetch"`

	API struct {
		RateLimitRPM int `yaml:"rateLimitRpm"`
	} `yaml:"api"`

	Playback struct {
		PinnedTier string `yaml:"pinnedTier"`
	} `yaml:"playback"`

	History struct {
		Enabled   *bool  `yaml:"enabled"`
		Retention string `yaml:"retention"`
	} `yaml:"history"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:           ":8080",
		LogLevel:         "info",
		DataDir:          "./data",
		CacheBackend:     "memory",
		CacheTTL:         30 * time.Second,
		CacheCleanup:     time.Minute,
		FetchTimeout:     10 * time.Second,
		FetchMaxBody:     4 << 20,
		RateLimitRPM:     120,
		HistoryEnabled:   true,
		HistoryRetention: 7 * 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// ASTRAL_* environment variables, then validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file on top of cfg. Unknown keys are
// rejected to catch typos early.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Listen != "" {
		cfg.Listen = fc.Listen
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.Cache.Backend != "" {
		cfg.CacheBackend = fc.Cache.Backend
	}
	if err := overlayDuration(&cfg.CacheTTL, fc.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.CacheCleanup, fc.Cache.Cleanup, "cache.cleanup"); err != nil {
		return err
	}
	if fc.Cache.Redis.Addr != "" {
		cfg.RedisAddr = fc.Cache.Redis.Addr
	}
	if fc.Cache.Redis.Password != "" {
		cfg.RedisPassword = fc.Cache.Redis.Password
	}
	if fc.Cache.Redis.DB != 0 {
		cfg.RedisDB = fc.Cache.Redis.DB
	}
	if err := overlayDuration(&cfg.FetchTimeout, fc.Fetch.Timeout, "fetch.timeout"); err != nil {
		return err
	}
	if fc.Fetch.MaxBodyBytes > 0 {
		cfg.FetchMaxBody = fc.Fetch.MaxBodyBytes
	}
	if fc.API.RateLimitRPM > 0 {
		cfg.RateLimitRPM = fc.API.RateLimitRPM
	}
	if fc.Playback.PinnedTier != "" {
		cfg.PinnedTier = fc.Playback.PinnedTier
	}
	if fc.History.Enabled != nil {
		cfg.HistoryEnabled = *fc.History.Enabled
	}
	if err := overlayDuration(&cfg.HistoryRetention, fc.History.Retention, "history.retention"); err != nil {
		return err
	}
	return nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// mergeEnv overlays ASTRAL_* environment variables on top of cfg.
// Invalid values fall back to the current value.
func mergeEnv(cfg *Config) {
	cfg.Listen = ParseString("ASTRAL_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("ASTRAL_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = ParseString("ASTRAL_DATA_DIR", cfg.DataDir)
	cfg.CacheBackend = ParseString("ASTRAL_CACHE_BACKEND", cfg.CacheBackend)
	cfg.CacheTTL = ParseDuration("ASTRAL_CACHE_TTL", cfg.CacheTTL)
	cfg.CacheCleanup = ParseDuration("ASTRAL_CACHE_CLEANUP", cfg.CacheCleanup)
	cfg.RedisAddr = ParseString("ASTRAL_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("ASTRAL_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("ASTRAL_REDIS_DB", cfg.RedisDB)
	cfg.FetchTimeout = ParseDuration("ASTRAL_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchMaxBody = int64(ParseInt("ASTRAL_FETCH_MAX_BODY", int(cfg.FetchMaxBody)))
	cfg.RateLimitRPM = ParseInt("ASTRAL_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.PinnedTier = ParseString("ASTRAL_PINNED_TIER", cfg.PinnedTier)
	cfg.HistoryEnabled = ParseBool("ASTRAL_HISTORY_ENABLED", cfg.HistoryEnabled)
	cfg.HistoryRetention = ParseDuration("ASTRAL_HISTORY_RETENTION", cfg.HistoryRetention)
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg Config) error {
	switch cfg.CacheBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache backend %q (want memory, redis or none)", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "redis" && cfg.RedisAddr == "" {
		return fmt.Errorf("cache backend redis requires a redis address")
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", cfg.CacheTTL)
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	if cfg.FetchMaxBody <= 0 {
		return fmt.Errorf("fetch max body must be positive, got %d", cfg.FetchMaxBody)
	}
	if cfg.RateLimitRPM <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimitRPM)
	}
	if cfg.PinnedTier != "" {
		if _, ok := resolver.ParseTier(cfg.PinnedTier); !ok {
			return fmt.Errorf("invalid pinned tier %q", cfg.PinnedTier)
		}
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}

// HistoryPath returns the SQLite file location under the data directory.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}
