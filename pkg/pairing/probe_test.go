package pairing

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyMdnsCheck(t *testing.T) {
	cases := []struct {
		name string
		res  *CommandResult
		want ProbeOutcome
	}{
		{
			name: "ready",
			res:  &CommandResult{ExitCode: 0, Stdout: []string{"mdns daemon version [10970003]"}},
			want: MdnsReady,
		},
		{
			name: "unknown command",
			res:  &CommandResult{ExitCode: 1, Stderr: []string{"adb: unknown command mdns"}},
			want: MdnsUnsupportedByTool,
		},
		{
			name: "failed without output",
			res:  &CommandResult{ExitCode: 1},
			want: MdnsCheckFailed,
		},
		{
			name: "daemon unavailable",
			res:  &CommandResult{ExitCode: 0, Stdout: []string{"ERROR: mdns daemon unavailable"}},
			want: MdnsUnsupportedByDaemon,
		},
		{
			name: "nil",
			res:  nil,
			want: MdnsCheckFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyMdnsCheck(tc.res); got != tc.want {
				t.Fatalf("ClassifyMdnsCheck() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProbeReportsDaemonVersion(t *testing.T) {
	exec := newStubExecutor()
	outcome, version, err := Probe(context.Background(), exec)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if outcome != MdnsReady || version != "10970003" {
		t.Fatalf("Probe() = %v %q", outcome, version)
	}
}

func TestProbeAdbUnavailable(t *testing.T) {
	exec := newStubExecutor()
	exec.checkErr = errors.New("exec: \"adb\": executable file not found in $PATH")
	_, _, err := Probe(context.Background(), exec)
	if KindOf(err) != KindAdbUnavailable {
		t.Fatalf("Probe() kind = %v, want %v", KindOf(err), KindAdbUnavailable)
	}
	if !KindAdbUnavailable.Fatal() {
		t.Fatal("adb unavailable should be fatal")
	}
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Probe(ctx, newStubExecutor())
	if KindOf(err) != KindCancelled {
		t.Fatalf("Probe() kind = %v, want %v", KindOf(err), KindCancelled)
	}
}
