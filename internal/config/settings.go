package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/httprunner/adbpair/internal/env"
)

// Environment variables read by Load.
const (
	EnvAdbPath            = "ADBPAIR_ADB_PATH"
	EnvPollInterval       = "ADBPAIR_POLL_INTERVAL"
	EnvDeviceWaitInterval = "ADBPAIR_DEVICE_WAIT_INTERVAL"
	EnvPairingTimeout     = "ADBPAIR_PAIRING_TIMEOUT"
	EnvMaxCommands        = "ADBPAIR_MAX_COMMANDS"
	EnvHistoryDBPath      = "ADBPAIR_HISTORY_DB_PATH"
	EnvHistoryJSONLPath   = "ADBPAIR_HISTORY_JSONL_PATH"
	EnvHistoryDisable     = "ADBPAIR_HISTORY_DISABLE"
	EnvLogLevel           = "ADBPAIR_LOG_LEVEL"
	EnvDotenv             = env.PathOverride
)

// Settings is the resolved runtime configuration.
type Settings struct {
	AdbPath            string        `yaml:"adb_path"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	DeviceWaitInterval time.Duration `yaml:"device_wait_interval"`
	PairingTimeout     time.Duration `yaml:"pairing_timeout"`
	MaxCommands        int           `yaml:"max_commands"`
	HistoryDBPath      string        `yaml:"history_db_path"`
	HistoryJSONLPath   string        `yaml:"history_jsonl_path"`
	HistoryDisable     bool          `yaml:"history_disable"`
	LogLevel           string        `yaml:"log_level"`
	// DotenvPath is an extra .env file loaded before the environment is read.
	DotenvPath         string        `yaml:"dotenv_path"`
}

// Defaults returns the settings used when neither file nor env set a key.
func Defaults() Settings {
	return Settings{
		PollInterval:       time.Second,
		DeviceWaitInterval: 500 * time.Millisecond,
		MaxCommands:        4,
		LogLevel:           "info",
	}
}

// Load layers defaults, the optional YAML file at path, then the environment.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	s.DotenvPath = String(EnvDotenv, s.DotenvPath)
	if s.DotenvPath != "" && s.DotenvPath != env.LoadedPath() {
		if err := env.Load(s.DotenvPath); err != nil {
			return Settings{}, err
		}
	}
	s.AdbPath = String(EnvAdbPath, s.AdbPath)
	s.PollInterval = Duration(EnvPollInterval, s.PollInterval)
	s.DeviceWaitInterval = Duration(EnvDeviceWaitInterval, s.DeviceWaitInterval)
	s.PairingTimeout = Duration(EnvPairingTimeout, s.PairingTimeout)
	s.MaxCommands = Int(EnvMaxCommands, s.MaxCommands)
	s.HistoryDBPath = String(EnvHistoryDBPath, s.HistoryDBPath)
	s.HistoryJSONLPath = String(EnvHistoryJSONLPath, s.HistoryJSONLPath)
	s.HistoryDisable = Bool(EnvHistoryDisable, s.HistoryDisable)
	s.LogLevel = String(EnvLogLevel, s.LogLevel)
	return s, s.Validate()
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	if s.PollInterval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", s.PollInterval)
	}
	if s.DeviceWaitInterval <= 0 {
		return errors.Errorf("device wait interval must be positive, got %s", s.DeviceWaitInterval)
	}
	if s.PairingTimeout < 0 {
		return errors.Errorf("pairing timeout cannot be negative, got %s", s.PairingTimeout)
	}
	if s.MaxCommands < 0 {
		return errors.Errorf("max commands cannot be negative, got %d", s.MaxCommands)
	}
	return nil
}
