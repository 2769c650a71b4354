package pairing

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	servicesHeader = "List of discovered mdns services"

	// PairingServiceType is the only mDNS service type that accepts `adb pair`.
	PairingServiceType = "_adb-tls-pairing._tcp."
)

var pairSuccessPattern = regexp.MustCompile(`^Successfully paired to (.+):(\d+) \[guid=([^\]]+)\]`)

// ParseMdnsServices parses the stdout of `adb mdns services`. The header and
// blank lines are skipped, services of other types (such as
// `_adb-tls-connect._tcp.`) are ignored. Any malformed line fails the whole parse.
func ParseMdnsServices(lines []string) ([]MdnsService, error) {
	services := make([]MdnsService, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, servicesHeader) {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			fields = strings.Fields(line)
		}
		if len(fields) != 3 {
			return nil, pkgerrors.Errorf("malformed mdns service line %q", line)
		}
		name := strings.TrimSpace(fields[0])
		serviceType := strings.TrimSpace(fields[1])
		if serviceType != PairingServiceType {
			continue
		}
		addr, port, err := parseEndpoint(fields[2])
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "malformed mdns service line %q", line)
		}
		if name == "" {
			return nil, pkgerrors.Errorf("mdns service without name %q", line)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		services = append(services, MdnsService{
			ServiceName: name,
			ServiceType: classifyServiceName(name),
			IPAddress:   addr,
			Port:        port,
		})
	}
	return services, nil
}

// ParsePairResult extracts the connect endpoint from a successful `adb pair`.
func ParsePairResult(res *CommandResult) (*PairingResult, error) {
	if res == nil {
		return nil, pkgerrors.New("empty pair result")
	}
	if res.ExitCode != 0 {
		return nil, pkgerrors.Errorf("adb pair exited with code %d: %s",
			res.ExitCode, commandOutputSummary(res))
	}
	for _, raw := range res.Stdout {
		m := pairSuccessPattern.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		addr, port, err := parseEndpoint(m[1] + ":" + m[2])
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parse pair result %q", raw)
		}
		return &PairingResult{IPAddress: addr, Port: port, MdnsServiceID: m[3]}, nil
	}
	return nil, pkgerrors.Errorf("adb pair did not report success: %s", commandOutputSummary(res))
}

func classifyServiceName(name string) ServiceType {
	if strings.HasPrefix(name, QrServiceNamePrefix) {
		return ServiceTypeQrCode
	}
	return ServiceTypePairingCode
}

// parseEndpoint splits `<ip>:<port>` on the last colon; IPv6 literals may be bare
// or bracketed and may carry a zone.
func parseEndpoint(s string) (netip.Addr, uint16, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return netip.Addr{}, 0, pkgerrors.Errorf("invalid endpoint %q", s)
	}
	host := strings.TrimSuffix(strings.TrimPrefix(s[:idx], "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, 0, pkgerrors.Wrapf(err, "invalid address in %q", s)
	}
	port, err := strconv.ParseUint(s[idx+1:], 10, 16)
	if err != nil || port == 0 {
		return netip.Addr{}, 0, pkgerrors.Errorf("invalid port in %q", s)
	}
	return addr.Unmap(), uint16(port), nil
}

func commandOutputSummary(res *CommandResult) string {
	lines := make([]string, 0, len(res.Stdout)+len(res.Stderr))
	for _, l := range append(append([]string{}, res.Stdout...), res.Stderr...) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return "no output"
	}
	return strings.Join(lines, "; ")
}
