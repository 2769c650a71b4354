package adb

import (
	"context"
	"strings"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Provider reads device state from the adb server using gadb.
type Provider struct {
	client gadb.Client
}

// New creates a Provider backed by the given gadb client.
func New(client gadb.Client) *Provider {
	return &Provider{client: client}
}

// NewDefault creates a Provider using a default gadb client. It fails when
// the adb server is not running yet.
func NewDefault() (*Provider, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "init adb client for provider")
	}
	return New(client), nil
}

// DeviceStates maps every attached serial to its gadb state name. A device
// whose state cannot be read is reported as UNKNOWN.
func (p *Provider) DeviceStates(ctx context.Context) (map[string]string, error) {
	devs, err := p.attached()
	if err != nil {
		return nil, err
	}
	states := make(map[string]string, len(devs))
	for _, dev := range devs {
		state, err := dev.State()
		if err != nil {
			state = gadb.StateUnknown
		}
		states[strings.TrimSpace(dev.Serial())] = string(state)
	}
	return states, nil
}

// DeviceProperties reads system properties of one device with getprop. Keys
// that cannot be read or are empty are left out; only a missing device fails.
func (p *Provider) DeviceProperties(serial string, keys ...string) (map[string]string, error) {
	dev, err := p.lookup(serial)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string, len(keys))
	for _, key := range keys {
		out, err := dev.RunShellCommand("getprop", key)
		if err != nil {
			log.Debug().Err(err).Str("serial", serial).Str("prop", key).Msg("getprop failed")
			continue
		}
		if v := strings.TrimSpace(out); v != "" {
			props[key] = v
		}
	}
	return props, nil
}

// attached lists devices known to the adb server, skipping entries without a serial.
func (p *Provider) attached() ([]*gadb.Device, error) {
	if p == nil {
		return nil, errors.New("adb provider is nil")
	}
	devs, err := p.client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "list adb devices")
	}
	out := devs[:0]
	for _, dev := range devs {
		if dev != nil && strings.TrimSpace(dev.Serial()) != "" {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (p *Provider) lookup(serial string) (*gadb.Device, error) {
	devs, err := p.attached()
	if err != nil {
		return nil, err
	}
	target := strings.TrimSpace(serial)
	for _, dev := range devs {
		if strings.TrimSpace(dev.Serial()) == target {
			return dev, nil
		}
	}
	return nil, errors.Errorf("device %s not found", serial)
}
