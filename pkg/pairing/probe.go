package pairing

import (
	"context"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProbeOutcome is the classification of `adb mdns check`.
type ProbeOutcome int

const (
	MdnsReady ProbeOutcome = iota
	MdnsUnsupportedByTool
	MdnsUnsupportedByDaemon
	MdnsCheckFailed
)

func (o ProbeOutcome) String() string {
	switch o {
	case MdnsReady:
		return "ready"
	case MdnsUnsupportedByTool:
		return "unsupported_by_tool"
	case MdnsUnsupportedByDaemon:
		return "unsupported_by_daemon"
	default:
		return "check_failed"
	}
}

// Kind maps a non-ready outcome to its error kind.
func (o ProbeOutcome) Kind() ErrorKind {
	switch o {
	case MdnsReady:
		return KindUnknown
	case MdnsUnsupportedByTool:
		return KindMdnsUnsupportedByTool
	case MdnsUnsupportedByDaemon:
		return KindMdnsUnsupportedByDaemon
	default:
		return KindMdnsCheckFailed
	}
}

var (
	mdnsCheckArgs    = []string{"mdns", "check"}
	mdnsServicesArgs = []string{"mdns", "services"}

	daemonVersionPattern = regexp.MustCompile(`mdns daemon version \[([^\]]*)\]`)
)

// ClassifyMdnsCheck turns the output of `adb mdns check` into a ProbeOutcome.
func ClassifyMdnsCheck(res *CommandResult) ProbeOutcome {
	if res == nil {
		return MdnsCheckFailed
	}
	if res.ExitCode != 0 {
		for _, line := range res.Stderr {
			if strings.Contains(strings.ToLower(line), "unknown command") {
				return MdnsUnsupportedByTool
			}
		}
		return MdnsCheckFailed
	}
	if _, ok := ParseDaemonVersion(res.Stdout); !ok {
		return MdnsUnsupportedByDaemon
	}
	return MdnsReady
}

// ParseDaemonVersion returns the build inside `mdns daemon version [<build>]`.
func ParseDaemonVersion(lines []string) (string, bool) {
	for _, line := range lines {
		if m := daemonVersionPattern.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Probe runs `adb mdns check` once. The returned error is non-nil only when the
// bridge itself cannot be run; unsupported or failed checks are reported through
// the outcome.
func Probe(ctx context.Context, runner CommandRunner) (ProbeOutcome, string, error) {
	res, err := runner.ExecuteCommand(ctx, mdnsCheckArgs, "")
	if err != nil {
		if ctx.Err() != nil {
			return MdnsCheckFailed, "", NewError(KindCancelled, "", ctx.Err())
		}
		return MdnsCheckFailed, "", NewError(KindAdbUnavailable, "", pkgerrors.Wrap(err, "run adb mdns check"))
	}
	outcome := ClassifyMdnsCheck(res)
	version, _ := ParseDaemonVersion(res.Stdout)
	log.Debug().
		Int("exit_code", res.ExitCode).
		Str("outcome", outcome.String()).
		Str("daemon_version", version).
		Msg("mdns check finished")
	return outcome, version, nil
}
