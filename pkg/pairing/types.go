package pairing

import (
	"context"
	"net/netip"
	"strconv"
	"strings"
)

// ServiceType tells how a discovered pairing service expects to receive its secret.
type ServiceType int

const (
	// ServiceTypeQrCode services were announced after the phone scanned a QR code.
	ServiceTypeQrCode ServiceType = iota + 1
	// ServiceTypePairingCode services wait for a 6-digit code typed by the user.
	ServiceTypePairingCode
)

func (t ServiceType) String() string {
	switch t {
	case ServiceTypeQrCode:
		return "qrcode"
	case ServiceTypePairingCode:
		return "pairing-code"
	default:
		return "unknown"
	}
}

// MdnsService is one entry of `adb mdns services`. ServiceName is its identity key.
type MdnsService struct {
	ServiceName string
	ServiceType ServiceType
	IPAddress   netip.Addr
	Port        uint16
}

// Endpoint returns the pairing endpoint in the `<ip>:<port>` form adb expects.
func (s MdnsService) Endpoint() string {
	return joinHostPort(s.IPAddress, s.Port)
}

// CommandResult is the outcome of a single bridge command invocation.
type CommandResult struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
}

// PairingResult is the connect endpoint reported by a successful `adb pair`.
type PairingResult struct {
	IPAddress     netip.Addr
	Port          uint16
	MdnsServiceID string
}

// Endpoint returns the connect endpoint as `<ip>:<port>`.
func (r PairingResult) Endpoint() string {
	return joinHostPort(r.IPAddress, r.Port)
}

// Device property keys read after a device comes online.
const (
	PropDeviceManufacturer = "ro.product.manufacturer"
	PropDeviceModel        = "ro.product.model"
	PropBuildVersion       = "ro.build.version.release"
)

// OnlineDevice is a device the bridge reports as online after pairing.
type OnlineDevice struct {
	ID         string
	Properties map[string]string
}

// DisplayString returns "<manufacturer> <model>", falling back to the device id.
func (d OnlineDevice) DisplayString() string {
	parts := make([]string, 0, 2)
	for _, key := range []string{PropDeviceManufacturer, PropDeviceModel} {
		if v := strings.TrimSpace(d.Properties[key]); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return d.ID
	}
	return strings.Join(parts, " ")
}

// CommandRunner executes a bridge command with the given stdin. A returned error
// means the bridge could not be run at all; a command that ran and failed is
// reported through CommandResult.ExitCode.
type CommandRunner interface {
	ExecuteCommand(ctx context.Context, args []string, stdin string) (*CommandResult, error)
}

// DeviceWaiter blocks until the device identified by a pairing result is online.
type DeviceWaiter interface {
	WaitForOnlineDevice(ctx context.Context, result PairingResult) (*OnlineDevice, error)
}

// Executor is the full bridge surface the engine needs.
type Executor interface {
	CommandRunner
	DeviceWaiter
}

// adb prints and accepts bare IPv6 literals; the port always follows the last colon.
func joinHostPort(addr netip.Addr, port uint16) string {
	return addr.String() + ":" + strconv.Itoa(int(port))
}
