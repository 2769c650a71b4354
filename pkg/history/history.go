package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/adbpair/pkg/pairing"
)

const (
	defaultDBDirName  = ".adbpair"
	defaultDBFileName = "history.sqlite"
	sessionTableName  = "pairing_sessions"
)

// Config controls enabled sinks. SQLite is always on; JSONL only with a path.
type Config struct {
	DBPath    string
	JSONLPath string
	HostID    string
}

// Entry is one pairing session as stored in history.
type Entry struct {
	SessionID       string        `json:"session_id"`
	Kind            string        `json:"kind"`
	ServiceName     string        `json:"service_name"`
	PairingEndpoint string        `json:"pairing_endpoint"`
	HostID          string        `json:"host_id,omitempty"`
	State           string        `json:"state"`
	ConnectEndpoint string        `json:"connect_endpoint,omitempty"`
	MdnsServiceID   string        `json:"mdns_service_id,omitempty"`
	DeviceSerial    string        `json:"device_serial,omitempty"`
	DeviceName      string        `json:"device_name,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at,omitempty"`
	Elapsed         time.Duration `json:"elapsed_ns,omitempty"`
}

// Sink defines the contract for each history backend.
type Sink interface {
	Started(ctx context.Context, entry Entry) error
	Finished(ctx context.Context, entry Entry) error
	Close() error
	Name() string
}

// Manager fans session events out to the configured sinks and implements
// pairing.Recorder.
type Manager struct {
	sinks  []Sink
	name   string
	hostID string
	db     *sqliteSink
}

var _ pairing.Recorder = (*Manager)(nil)

// NewManager builds a history manager based on cfg.
func NewManager(cfg Config) (*Manager, error) {
	dbPath, err := ResolveDatabasePath(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db, err := newSQLiteSink(dbPath)
	if err != nil {
		return nil, err
	}
	sinks := []Sink{db}
	if strings.TrimSpace(cfg.JSONLPath) != "" {
		jsonl, err := newJSONLSink(cfg.JSONLPath)
		if err != nil {
			db.Close()
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	return &Manager{
		sinks:  sinks,
		name:   strings.Join(names, ","),
		hostID: strings.TrimSpace(cfg.HostID),
		db:     db,
	}, nil
}

// SessionStarted records a session as it issues its pair command.
func (m *Manager) SessionStarted(ctx context.Context, rec *pairing.SessionRecord) error {
	if rec == nil {
		return pkgerrors.New("history: session record nil")
	}
	entry := Entry{
		SessionID:       rec.SessionID,
		Kind:            rec.Kind,
		ServiceName:     rec.ServiceName,
		PairingEndpoint: rec.PairingEndpoint,
		HostID:          m.hostID,
		State:           pairing.StatePairing.String(),
		StartedAt:       rec.StartedAt,
	}
	return m.fanOut(func(s Sink) error { return s.Started(ctx, entry) })
}

// SessionFinished records the terminal state of a session.
func (m *Manager) SessionFinished(ctx context.Context, sessionID string, out *pairing.SessionOutcome) error {
	if out == nil {
		return pkgerrors.New("history: session outcome nil")
	}
	entry := Entry{
		SessionID:       sessionID,
		HostID:          m.hostID,
		State:           out.State,
		ConnectEndpoint: out.ConnectEndpoint,
		MdnsServiceID:   out.MdnsServiceID,
		DeviceSerial:    out.DeviceSerial,
		DeviceName:      out.DeviceName,
		ErrorKind:       out.ErrorKind,
		ErrorMessage:    out.ErrorMessage,
		EndedAt:         out.EndedAt,
		Elapsed:         out.Elapsed,
	}
	return m.fanOut(func(s Sink) error { return s.Finished(ctx, entry) })
}

func (m *Manager) fanOut(write func(Sink) error) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := write(sink); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, fmt.Sprintf("%s write failed", sink.Name())))
		}
	}
	return errors.Join(errs...)
}

// List returns up to limit sessions, newest first. A limit <= 0 returns all.
func (m *Manager) List(ctx context.Context, limit int) ([]Entry, error) {
	if m == nil || m.db == nil {
		return nil, pkgerrors.New("history: manager nil")
	}
	return m.db.list(ctx, limit)
}

func (m *Manager) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, fmt.Sprintf("%s close failed", sink.Name())))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Name() string {
	if m == nil || m.name == "" {
		return "history"
	}
	return m.name
}

// ResolveDatabasePath returns the history database path, creating its parent
// directory. An empty custom path means ~/.adbpair/history.sqlite.
func ResolveDatabasePath(custom string) (string, error) {
	if custom = strings.TrimSpace(custom); custom != "" {
		if err := ensureDir(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pkgerrors.Wrap(err, "history: locate user home failed")
	}
	dir := filepath.Join(home, defaultDBDirName)
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, defaultDBFileName)
	log.Debug().Str("path", path).Msg("history: using default database path")
	return path, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "history: create dir %s failed", dir)
	}
	return nil
}
