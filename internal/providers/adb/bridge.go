package adb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/adbpair/pkg/pairing"
)

const DefaultDeviceWaitInterval = 500 * time.Millisecond

// DeviceSource is the device view the bridge polls after pairing. Provider
// implements it over the adb server protocol.
type DeviceSource interface {
	DeviceStates(ctx context.Context) (map[string]string, error)
	DeviceProperties(serial string, keys ...string) (map[string]string, error)
}

var _ DeviceSource = (*Provider)(nil)

// onlineDeviceProps are read from a device once it is online.
var onlineDeviceProps = []string{
	pairing.PropDeviceManufacturer,
	pairing.PropDeviceModel,
	pairing.PropBuildVersion,
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// WaitInterval is the delay between device list polls.
	WaitInterval time.Duration
	// Devices overrides the gadb-backed device source.
	Devices DeviceSource
}

// Bridge runs adb commands through the binary and waits for paired devices
// through the adb server protocol.
type Bridge struct {
	runner   *Runner
	interval time.Duration

	mu      sync.Mutex
	devices DeviceSource
}

var _ pairing.Executor = (*Bridge)(nil)

// NewBridge wires the runner with a device source. The default gadb source is
// created on first use because the adb server may not be up before `adb mdns check`.
func NewBridge(runner *Runner, opts BridgeOptions) (*Bridge, error) {
	if runner == nil {
		return nil, errors.New("adb runner cannot be nil")
	}
	interval := opts.WaitInterval
	if interval <= 0 {
		interval = DefaultDeviceWaitInterval
	}
	return &Bridge{runner: runner, interval: interval, devices: opts.Devices}, nil
}

func (b *Bridge) ExecuteCommand(ctx context.Context, args []string, stdin string) (*pairing.CommandResult, error) {
	return b.runner.ExecuteCommand(ctx, args, stdin)
}

// WaitForOnlineDevice polls the device list until a device whose serial
// contains the paired mDNS service id is online, then reads its properties.
func (b *Bridge) WaitForOnlineDevice(ctx context.Context, result pairing.PairingResult) (*pairing.OnlineDevice, error) {
	if strings.TrimSpace(result.MdnsServiceID) == "" {
		return nil, errors.New("pairing result has no mdns service id")
	}
	logger := log.With().Str("mdns_service_id", result.MdnsServiceID).Logger()
	for {
		devices, serial, err := b.findOnline(ctx, result.MdnsServiceID)
		if err != nil {
			logger.Debug().Err(err).Msg("list devices failed, retrying")
		}
		if serial != "" {
			props, err := devices.DeviceProperties(serial, onlineDeviceProps...)
			if err != nil {
				// gone again between the list and the property read
				logger.Debug().Err(err).Str("serial", serial).Msg("read device properties failed")
				props = map[string]string{}
			}
			logger.Info().Str("serial", serial).Msg("paired device online")
			return &pairing.OnlineDevice{ID: serial, Properties: props}, nil
		}

		timer := time.NewTimer(b.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bridge) findOnline(ctx context.Context, mdnsServiceID string) (DeviceSource, string, error) {
	devices, err := b.deviceSource()
	if err != nil {
		return nil, "", err
	}
	states, err := devices.DeviceStates(ctx)
	if err != nil {
		return nil, "", err
	}
	return devices, MatchOnlineDevice(states, mdnsServiceID), nil
}

func (b *Bridge) deviceSource() (DeviceSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.devices != nil {
		return b.devices, nil
	}
	provider, err := NewDefault()
	if err != nil {
		return nil, err
	}
	b.devices = provider
	return provider, nil
}

// MatchOnlineDevice returns the online serial containing mdnsServiceID. With
// several candidates the shortest, then lexically first, serial wins.
func MatchOnlineDevice(states map[string]string, mdnsServiceID string) string {
	var matches []string
	for serial, state := range states {
		if state != string(gadb.StateOnline) {
			continue
		}
		if strings.Contains(serial, mdnsServiceID) {
			matches = append(matches, serial)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches[0]
}
