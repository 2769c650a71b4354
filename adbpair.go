// Package adbpair pairs Android devices over Wi-Fi through the adb bridge.
//
// Client wires the adb executable, the adb server device view, the session
// history and the configuration together, and creates pairing orchestrators.
package adbpair

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/adbpair/internal/config"
	adbprovider "github.com/httprunner/adbpair/internal/providers/adb"
	"github.com/httprunner/adbpair/pkg/history"
	"github.com/httprunner/adbpair/pkg/pairing"
)

// Settings is the resolved runtime configuration.
type Settings = config.Settings

// ErrHistoryDisabled is returned by History when history is turned off.
var ErrHistoryDisabled = errors.New("pairing history is disabled")

// LoadSettings layers defaults, the optional YAML file at path and the
// ADBPAIR_* environment.
func LoadSettings(path string) (Settings, error) {
	return config.Load(path)
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return config.Defaults()
}

// Options overrides parts of the default wiring.
type Options struct {
	Settings Settings
	// Executor replaces the adb bridge.
	Executor pairing.Executor
	// Recorder replaces the history manager as session recorder.
	Recorder pairing.Recorder
	Random   pairing.RandomSource
	Clock    pairing.Clock
}

// Client creates orchestrators sharing one bridge and one history store.
type Client struct {
	settings Settings
	exec     pairing.Executor
	recorder pairing.Recorder
	random   pairing.RandomSource
	clock    pairing.Clock
	hostID   string

	mu         sync.Mutex
	history    *history.Manager
	historyErr error
	historyOK  bool
}

// NewClient resolves the adb bridge unless opts.Executor is set.
func NewClient(opts Options) (*Client, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	exec := opts.Executor
	if exec == nil {
		runner, err := adbprovider.NewRunner(opts.Settings.AdbPath)
		if err != nil {
			return nil, pairing.NewError(pairing.KindAdbUnavailable, "", err)
		}
		bridge, err := adbprovider.NewBridge(runner, adbprovider.BridgeOptions{
			WaitInterval: opts.Settings.DeviceWaitInterval,
		})
		if err != nil {
			return nil, err
		}
		log.Debug().Str("adb", runner.Path()).Msg("adb bridge resolved")
		exec = bridge
	}
	return &Client{
		settings: opts.Settings,
		exec:     exec,
		recorder: opts.Recorder,
		random:   opts.Random,
		clock:    opts.Clock,
		hostID:   HostID(),
	}, nil
}

// Settings returns the client configuration.
func (c *Client) Settings() Settings { return c.settings }

// Executor returns the bridge used by the client.
func (c *Client) Executor() pairing.Executor { return c.exec }

// Probe runs a single `adb mdns check`.
func (c *Client) Probe(ctx context.Context) (pairing.ProbeOutcome, string, error) {
	return pairing.Probe(ctx, c.exec)
}

// DiscoverServices runs a single `adb mdns services` and returns the pairing services.
func (c *Client) DiscoverServices(ctx context.Context) ([]pairing.MdnsService, error) {
	return pairing.NewDiscoveryPoller(c.exec, c.clock).Poll(ctx)
}

// NewOrchestrator creates an orchestrator recording its sessions to history.
// A history store that cannot be opened is logged and skipped.
func (c *Client) NewOrchestrator() (*pairing.Orchestrator, error) {
	recorder := c.recorder
	if recorder == nil && !c.settings.HistoryDisable {
		manager, err := c.historyManager()
		if err != nil {
			log.Warn().Err(err).Msg("pairing history unavailable, sessions will not be recorded")
		} else {
			recorder = manager
		}
	}
	return pairing.NewOrchestrator(c.exec, pairing.OrchestratorConfig{
		PollInterval:          c.settings.PollInterval,
		MaxConcurrentCommands: c.settings.MaxCommands,
		Random:                c.random,
		Clock:                 c.clock,
		Recorder:              recorder,
	})
}

// History returns up to limit recorded sessions, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if c.settings.HistoryDisable {
		return nil, ErrHistoryDisabled
	}
	manager, err := c.historyManager()
	if err != nil {
		return nil, err
	}
	return manager.List(ctx, limit)
}

func (c *Client) historyManager() (*history.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.historyOK {
		c.historyOK = true
		c.history, c.historyErr = history.NewManager(history.Config{
			DBPath:    c.settings.HistoryDBPath,
			JSONLPath: c.settings.HistoryJSONLPath,
			HostID:    c.hostID,
		})
	}
	return c.history, c.historyErr
}

// Close releases the history store.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history == nil {
		return nil
	}
	err := c.history.Close()
	c.history, c.historyErr = nil, errors.New("client closed")
	return err
}
