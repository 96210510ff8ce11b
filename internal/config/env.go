package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/astralstream/resolver/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. The source is logged for observability; values of sensitive
// keys are never logged.
func ParseString(key, defaultValue string) string {
	logger := xglog.WithComponent("config")
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		logDefault(logger, key)
		return defaultValue
	}
	if isSensitive(key) {
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Bool("sensitive", true).
			Msg("using environment variable")
	} else {
		logger.Debug().
			Str("key", key).
			Str("value", value).
			Str("source", "environment").
			Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from an environment variable or returns the
// default. Falls back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := xglog.WithComponent("config")
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		logDefault(logger, key)
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseBool reads a boolean from an environment variable or returns the
// default. Accepts the strconv.ParseBool forms.
func ParseBool(key string, defaultValue bool) bool {
	logger := xglog.WithComponent("config")
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		logDefault(logger, key)
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
	return b
}

// ParseDuration reads a time.Duration from an environment variable or
// returns the default. Falls back to the default on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := xglog.WithComponent("config")
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		logDefault(logger, key)
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token") || strings.Contains(k, "secret")
}

func logDefault(logger zerolog.Logger, key string) {
	logger.Debug().
		Str("key", key).
		Str("source", "default").
		Msg("using default value")
}
