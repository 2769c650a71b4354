package pairing

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func TestDiffSnapshots(t *testing.T) {
	a := MdnsService{ServiceName: "adb-a", IPAddress: netip.MustParseAddr("10.0.0.1"), Port: 1000}
	b := MdnsService{ServiceName: "adb-b", IPAddress: netip.MustParseAddr("10.0.0.2"), Port: 2000}
	bMoved := b
	bMoved.Port = 2001
	c := MdnsService{ServiceName: "adb-c", IPAddress: netip.MustParseAddr("10.0.0.3"), Port: 3000}

	arrived, departed, updated := diffSnapshots([]MdnsService{a, b}, []MdnsService{bMoved, c})
	if len(arrived) != 1 || arrived[0] != c {
		t.Fatalf("arrived = %+v", arrived)
	}
	if len(departed) != 1 || departed[0] != a {
		t.Fatalf("departed = %+v", departed)
	}
	if len(updated) != 1 || updated[0] != bMoved {
		t.Fatalf("updated = %+v", updated)
	}

	arrived, departed, updated = diffSnapshots([]MdnsService{a}, []MdnsService{a})
	if len(arrived)+len(departed)+len(updated) != 0 {
		t.Fatal("identical snapshots must not produce changes")
	}
}

type discoveryLog struct {
	mu      sync.Mutex
	arrive  []MdnsService
	depart  []MdnsService
	update  []MdnsService
	arrived chan int
	exec    *stubExecutor
	atPoll  []int
}

func (l *discoveryLog) callbacks() DiscoveryCallbacks {
	return DiscoveryCallbacks{
		OnArrive: func(svc MdnsService) {
			l.mu.Lock()
			l.arrive = append(l.arrive, svc)
			l.atPoll = append(l.atPoll, l.exec.servicesCalled())
			n := len(l.arrive)
			l.mu.Unlock()
			l.arrived <- n
		},
		OnDepart: func(svc MdnsService) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.depart = append(l.depart, svc)
		},
		OnUpdate: func(svc MdnsService) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.update = append(l.update, svc)
		},
	}
}

func TestDiscoveryPollerArrivalOnThirdPoll(t *testing.T) {
	line := "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149"
	exec := newStubExecutor()
	exec.serviceCh = make(chan int, 16)
	exec.services = []*CommandResult{
		servicesOutput(),
		servicesOutput(),
		servicesOutput(line),
		servicesOutput("adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:40000"),
		servicesOutput(),
	}
	clock := newFakeClock()
	dl := &discoveryLog{arrived: make(chan int, 4), exec: exec}

	poller := NewDiscoveryPoller(exec, clock)
	if err := poller.Start(context.Background(), time.Second, dl.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := poller.Start(context.Background(), time.Second, dl.callbacks()); err == nil {
		t.Fatal("second Start() should fail")
	}

	waitPoll := func(want int) {
		t.Helper()
		select {
		case got := <-exec.serviceCh:
			if got != want {
				t.Fatalf("poll #%d, want #%d", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("poll #%d never ran", want)
		}
	}
	tick := func() { clock.ticks <- time.Now() }

	waitPoll(1)
	tick()
	waitPoll(2)
	tick()
	waitPoll(3)
	select {
	case <-dl.arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("arrival never reported")
	}
	tick()
	waitPoll(4)
	tick()
	waitPoll(5)
	// the next tick is only accepted once poll 5 has been fully dispatched
	tick()
	waitPoll(6)
	poller.Stop()
	poller.Stop()

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if len(dl.arrive) != 1 || dl.atPoll[0] != 3 {
		t.Fatalf("arrivals = %+v at polls %v", dl.arrive, dl.atPoll)
	}
	if len(dl.update) != 1 || dl.update[0].Port != 40000 {
		t.Fatalf("updates = %+v", dl.update)
	}
	if len(dl.depart) != 1 || dl.depart[0].ServiceName != "adb-939AX05XBZ-vWgJpq" {
		t.Fatalf("departs = %+v", dl.depart)
	}
}

func TestDiscoveryPollerGlitchKeepsSnapshot(t *testing.T) {
	line := "adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149"
	exec := newStubExecutor()
	exec.serviceCh = make(chan int, 16)
	exec.services = []*CommandResult{
		servicesOutput(line),
		{ExitCode: 1, Stderr: []string{"error: cannot connect to daemon"}},
		servicesOutput("garbage line"),
		servicesOutput(line),
	}
	clock := newFakeClock()
	dl := &discoveryLog{arrived: make(chan int, 4), exec: exec}

	poller := NewDiscoveryPoller(exec, clock)
	if err := poller.Start(context.Background(), time.Second, dl.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 1; i <= 4; i++ {
		select {
		case <-exec.serviceCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("poll #%d never ran", i)
		}
		clock.ticks <- time.Now()
	}
	poller.Stop()

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if len(dl.arrive) != 1 || len(dl.depart) != 0 || len(dl.update) != 0 {
		t.Fatalf("arrive=%v depart=%v update=%v", dl.arrive, dl.depart, dl.update)
	}
}

func TestDiscoveryPollerRejectsBadInterval(t *testing.T) {
	poller := NewDiscoveryPoller(newStubExecutor(), nil)
	if err := poller.Start(context.Background(), 0, DiscoveryCallbacks{}); err == nil {
		t.Fatal("zero interval should be rejected")
	}
	poller.Stop()
}

// heldRunner blocks every command until release is closed and then answers
// with result, even when the command's context was cancelled meanwhile.
type heldRunner struct {
	entered chan context.Context
	release chan struct{}
	result  *CommandResult
}

func (r *heldRunner) ExecuteCommand(ctx context.Context, args []string, stdin string) (*CommandResult, error) {
	r.entered <- ctx
	<-r.release
	return r.result, nil
}

func TestDiscoveryPollerNoCallbackAfterStop(t *testing.T) {
	runner := &heldRunner{
		entered: make(chan context.Context, 1),
		release: make(chan struct{}),
		result:  servicesOutput("adb-939AX05XBZ-vWgJpq\t_adb-tls-pairing._tcp.\t192.168.1.86:39149"),
	}
	var mu sync.Mutex
	arrivals := 0
	poller := NewDiscoveryPoller(runner, newFakeClock())
	err := poller.Start(context.Background(), time.Second, DiscoveryCallbacks{
		OnArrive: func(MdnsService) {
			mu.Lock()
			arrivals++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var pollCtx context.Context
	select {
	case pollCtx = <-runner.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("poll never ran")
	}

	stopped := make(chan struct{})
	go func() {
		poller.Stop()
		close(stopped)
	}()
	select {
	case <-pollCtx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not cancel the in-flight poll")
	}
	select {
	case <-stopped:
		t.Fatal("Stop() returned while a poll was still in flight")
	default:
	}
	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() never returned")
	}

	mu.Lock()
	defer mu.Unlock()
	if arrivals != 0 {
		t.Fatalf("OnArrive ran %d times for a poll answered after Stop()", arrivals)
	}
}
