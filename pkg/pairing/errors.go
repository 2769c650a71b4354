package pairing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pairing failures so callers can tell orchestration-wide
// problems from a single failed attempt.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAdbUnavailable
	KindMdnsUnsupportedByTool
	KindMdnsUnsupportedByDaemon
	KindMdnsCheckFailed
	KindPairCommandError
	KindDeviceWaitFailed
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAdbUnavailable:
		return "adb_unavailable"
	case KindMdnsUnsupportedByTool:
		return "mdns_unsupported_by_tool"
	case KindMdnsUnsupportedByDaemon:
		return "mdns_unsupported_by_daemon"
	case KindMdnsCheckFailed:
		return "mdns_check_failed"
	case KindPairCommandError:
		return "pair_command_error"
	case KindDeviceWaitFailed:
		return "device_wait_failed"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Message is the user-facing text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindAdbUnavailable:
		return "Unable to run adb. Check that the Android SDK platform-tools are installed."
	case KindMdnsUnsupportedByTool:
		return "This version of adb does not support pairing devices over Wi-Fi. Update the SDK platform-tools."
	case KindMdnsUnsupportedByDaemon:
		return "The adb mDNS daemon is unavailable on this host, so Wi-Fi devices cannot be discovered."
	case KindMdnsCheckFailed:
		return "Unable to check adb mDNS support."
	case KindPairCommandError:
		return "Pairing with the device failed. Check the code and try again."
	case KindDeviceWaitFailed:
		return "The device was paired but did not come online."
	case KindCancelled:
		return "Pairing was cancelled."
	default:
		return "Unexpected pairing error."
	}
}

// Fatal reports whether the kind ends the whole orchestration.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindAdbUnavailable, KindMdnsUnsupportedByTool, KindMdnsUnsupportedByDaemon, KindMdnsCheckFailed:
		return true
	default:
		return false
	}
}

// Error is the typed error returned by the engine.
type Error struct {
	Kind    ErrorKind
	Service string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Service != "" {
		msg = fmt.Sprintf("%s (service %s)", msg, e.Service)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error; service is empty for orchestration-wide failures.
func NewError(kind ErrorKind, service string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Err: cause}
}

// KindOf extracts the ErrorKind from err, KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

var (
	ErrInvalidPairingCode = errors.New("pairing code must be 6 digits")
	ErrServiceNotFound    = errors.New("pairing service not discovered")
	ErrOrchestratorClosed = errors.New("orchestrator closed")
)
