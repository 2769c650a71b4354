package pairing

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMdnsServicesHeaderOnly(t *testing.T) {
	services, err := ParseMdnsServices([]string{"List of discovered mdns services"})
	require.NoError(t, err)
	require.Empty(t, services)

	services, err = ParseMdnsServices(nil)
	require.NoError(t, err)
	require.Empty(t, services)
}

func TestParseMdnsServicesTwoServices(t *testing.T) {
	lines := []string{
		"List of discovered mdns services",
		"adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149",
		"studio-+8nkUqLWv2\t_adb-tls-pairing._tcp.\t192.168.1.86:37313",
		"",
	}
	services, err := ParseMdnsServices(lines)
	require.NoError(t, err)
	require.Len(t, services, 2)

	require.Equal(t, MdnsService{
		ServiceName: "adb-939AX05XBZ-vWgJpq",
		ServiceType: ServiceTypePairingCode,
		IPAddress:   netip.MustParseAddr("192.168.1.86"),
		Port:        39149,
	}, services[0])
	require.Equal(t, MdnsService{
		ServiceName: "studio-+8nkUqLWv2",
		ServiceType: ServiceTypeQrCode,
		IPAddress:   netip.MustParseAddr("192.168.1.86"),
		Port:        37313,
	}, services[1])
	require.Equal(t, "192.168.1.86:37313", services[1].Endpoint())
}

func TestParseMdnsServicesSkipsOtherTypesAndDuplicates(t *testing.T) {
	lines := []string{
		"List of discovered mdns services",
		"adb-939AX05XBZ-vWgJpq\t_adb-tls-connect._tcp.\t192.168.1.86:41235",
		"adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149",
		"adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149",
	}
	services, err := ParseMdnsServices(lines)
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, uint16(39149), services[0].Port)
}

func TestParseMdnsServicesSpaceSeparated(t *testing.T) {
	services, err := ParseMdnsServices([]string{
		"adb-R5CR1234-abcd   _adb-tls-pairing._tcp.   10.0.0.7:40001",
	})
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "10.0.0.7:40001", services[0].Endpoint())
}

func TestParseMdnsServicesIPv6(t *testing.T) {
	services, err := ParseMdnsServices([]string{
		"adb-R5CR1234-abcd\t_adb-tls-pairing._tcp.\tfe80::1c2d:3eff:fe4f:5a6b:40001",
	})
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.True(t, services[0].IPAddress.Is6())
	require.Equal(t, uint16(40001), services[0].Port)
}

func TestParseMdnsServicesMalformed(t *testing.T) {
	cases := map[string]string{
		"missing fields": "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.",
		"bad address":    "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\tnot-an-ip:1234",
		"bad port":       "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:http",
		"zero port":      "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:0",
		"no port":        "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMdnsServices([]string{"List of discovered mdns services", line})
			require.Error(t, err)
		})
	}
}

func TestParsePairResult(t *testing.T) {
	res := &CommandResult{
		ExitCode: 0,
		Stdout:   []string{"Successfully paired to 192.168.1.86:12345 [guid=adb-939AX05XBZ-vWgJpq]"},
	}
	result, err := ParsePairResult(res)
	require.NoError(t, err)
	require.Equal(t, PairingResult{
		IPAddress:     netip.MustParseAddr("192.168.1.86"),
		Port:          12345,
		MdnsServiceID: "adb-939AX05XBZ-vWgJpq",
	}, *result)
	require.Equal(t, "192.168.1.86:12345", result.Endpoint())
}

func TestParsePairResultFailures(t *testing.T) {
	cases := map[string]*CommandResult{
		"nil":         nil,
		"non-zero":    {ExitCode: 1, Stdout: []string{"Successfully paired to 192.168.1.86:12345 [guid=adb-x]"}},
		"wrong code":  {ExitCode: 0, Stdout: []string{"Failed: Wrong password or connection was dropped."}},
		"empty":       {ExitCode: 0},
		"bad address": {ExitCode: 0, Stdout: []string{"Successfully paired to host.local:12345 [guid=adb-x]"}},
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePairResult(res)
			require.Error(t, err)
		})
	}
}

func TestOnlineDeviceDisplayString(t *testing.T) {
	d := OnlineDevice{ID: "adb-939AX05XBZ-vWgJpq._adb-tls-connect._tcp", Properties: map[string]string{
		PropDeviceManufacturer: "Google",
		PropDeviceModel:        "Pixel 7",
	}}
	if got := d.DisplayString(); got != "Google Pixel 7" {
		t.Fatalf("DisplayString() = %q", got)
	}
	d.Properties = nil
	if got := d.DisplayString(); got != d.ID {
		t.Fatalf("DisplayString() without properties = %q", got)
	}
}
