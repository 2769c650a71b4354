package pairing

import (
	"context"
	"time"
)

// SessionRecord describes a pairing session when it issues its pair command.
type SessionRecord struct {
	SessionID       string
	Kind            string
	ServiceName     string
	PairingEndpoint string
	StartedAt       time.Time
}

// SessionOutcome describes the terminal state of a session.
type SessionOutcome struct {
	State           string
	ConnectEndpoint string
	MdnsServiceID   string
	DeviceSerial    string
	DeviceName      string
	ErrorKind       string
	ErrorMessage    string
	EndedAt         time.Time
	Elapsed         time.Duration
}

// Recorder persists session lifecycle. Failures are logged and never affect pairing.
type Recorder interface {
	SessionStarted(ctx context.Context, rec *SessionRecord) error
	SessionFinished(ctx context.Context, sessionID string, out *SessionOutcome) error
}

type noopRecorder struct{}

func (noopRecorder) SessionStarted(ctx context.Context, rec *SessionRecord) error { return nil }
func (noopRecorder) SessionFinished(ctx context.Context, sessionID string, out *SessionOutcome) error {
	return nil
}
