package pairing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type pairCall struct {
	endpoint string
	stdin    string
}

// stubExecutor scripts adb output for the engine.
type stubExecutor struct {
	mu sync.Mutex

	check    *CommandResult
	checkErr error

	// services are returned in order; the last entry repeats
	services     []*CommandResult
	serviceCalls int
	serviceCh    chan int

	pairResults map[string]*CommandResult
	pairCalls   []pairCall

	device      *OnlineDevice
	waitErr     error
	waitBlock   bool
	waitStarted chan PairingResult
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		check:       &CommandResult{ExitCode: 0, Stdout: []string{"mdns daemon version [10970003]"}},
		pairResults: make(map[string]*CommandResult),
		waitStarted: make(chan PairingResult, 8),
	}
}

func (s *stubExecutor) ExecuteCommand(ctx context.Context, args []string, stdin string) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(args) == 2 && args[0] == "mdns" && args[1] == "check":
		return s.check, s.checkErr
	case len(args) == 2 && args[0] == "mdns" && args[1] == "services":
		s.serviceCalls++
		if s.serviceCh != nil {
			s.serviceCh <- s.serviceCalls
		}
		if len(s.services) == 0 {
			return &CommandResult{}, nil
		}
		idx := s.serviceCalls - 1
		if idx >= len(s.services) {
			idx = len(s.services) - 1
		}
		return s.services[idx], nil
	case len(args) == 2 && args[0] == "pair":
		s.pairCalls = append(s.pairCalls, pairCall{endpoint: args[1], stdin: stdin})
		if res, ok := s.pairResults[args[1]+"|"+stdin]; ok {
			return res, nil
		}
		return &CommandResult{ExitCode: 1, Stdout: []string{"Failed: Wrong password or connection was dropped."}}, nil
	}
	return nil, errors.New("unexpected command " + strings.Join(args, " "))
}

func (s *stubExecutor) WaitForOnlineDevice(ctx context.Context, result PairingResult) (*OnlineDevice, error) {
	s.waitStarted <- result
	s.mu.Lock()
	block, device, err := s.waitBlock, s.device, s.waitErr
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return device, err
}

func (s *stubExecutor) servicesCalled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceCalls
}

func (s *stubExecutor) pairCallsSnapshot() []pairCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pairCall(nil), s.pairCalls...)
}

type stubRecorder struct {
	mu       sync.Mutex
	started  []*SessionRecord
	finished map[string]*SessionOutcome
	order    []string
}

func (r *stubRecorder) SessionStarted(ctx context.Context, rec *SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, rec)
	r.order = append(r.order, "started:"+rec.SessionID)
	return nil
}

func (r *stubRecorder) SessionFinished(ctx context.Context, id string, out *SessionOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]*SessionOutcome)
	}
	r.finished[id] = out
	r.order = append(r.order, "finished:"+id)
	return nil
}

func (r *stubRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type fakeClock struct {
	ticks chan time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{ticks: make(chan time.Time)} }

func (c *fakeClock) Now() time.Time                         { return time.Unix(1700000000, 0) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return c.ticks }

func servicesOutput(lines ...string) *CommandResult {
	return &CommandResult{ExitCode: 0, Stdout: append([]string{"List of discovered mdns services"}, lines...)}
}

func waitForEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed before expected event")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func isSessionState(state SessionState) func(Event) bool {
	return func(ev Event) bool {
		return ev.Type == EventSessionState && ev.Session != nil && ev.Session.State == state
	}
}
