package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/httprunner/adbpair/internal/env"
)

var ensureOnce sync.Once

func ensureEnvLoaded() {
	ensureOnce.Do(func() {
		_ = env.Ensure()
	})
}

// lookup returns the trimmed value of key; ok is false when unset or blank.
func lookup(key string) (string, bool) {
	ensureEnvLoaded()
	val := strings.TrimSpace(os.Getenv(key))
	return val, val != ""
}

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		log.Warn().Str("env", key).Str("value", val).Msg("invalid duration, using default")
		return fallback
	}
	return parsed
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		log.Warn().Str("env", key).Str("value", val).Msg("invalid integer, using default")
		return fallback
	}
	return parsed
}

// Bool parses a boolean environment variable; yes/no are accepted too.
func Bool(key string, fallback bool) bool {
	val, ok := lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	log.Warn().Str("env", key).Str("value", val).Msg("invalid boolean, using default")
	return fallback
}
