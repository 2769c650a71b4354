package adbpair

import "github.com/httprunner/adbpair/internal/config"

// Environment variable names understood by LoadSettings. They are re-exported
// here so callers embedding adbpair can depend on the root package only.
const (
	EnvAdbPath            = config.EnvAdbPath
	EnvPollInterval       = config.EnvPollInterval
	EnvDeviceWaitInterval = config.EnvDeviceWaitInterval
	EnvPairingTimeout     = config.EnvPairingTimeout
	EnvMaxCommands        = config.EnvMaxCommands
	EnvHistoryDBPath      = config.EnvHistoryDBPath
	EnvHistoryJSONLPath   = config.EnvHistoryJSONLPath
	EnvHistoryDisable     = config.EnvHistoryDisable
	EnvLogLevel           = config.EnvLogLevel
	EnvDotenv             = config.EnvDotenv
)
