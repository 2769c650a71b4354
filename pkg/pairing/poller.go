package pairing

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Clock abstracts waiting between poll ticks.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// DiscoveryCallbacks receive snapshot differences. Nil callbacks are skipped.
type DiscoveryCallbacks struct {
	OnArrive func(MdnsService)
	OnDepart func(MdnsService)
	// OnUpdate fires when a known service name reappears with a new address or port.
	OnUpdate func(MdnsService)
}

// DiscoveryPoller runs `adb mdns services` on a fixed interval and reports
// which services arrived, departed or moved since the previous snapshot.
// Ticks are not pipelined: the next wait starts after the previous tick's
// callbacks return.
//
// A failed poll keeps the previous snapshot: while adb is unreachable no
// departures are reported, and services still advertised once it recovers
// produce no events.
type DiscoveryPoller struct {
	runner CommandRunner
	clock  Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the polling goroutine
	last []MdnsService
}

// NewDiscoveryPoller creates a poller; a nil clock means the wall clock.
func NewDiscoveryPoller(runner CommandRunner, clock Clock) *DiscoveryPoller {
	if clock == nil {
		clock = RealClock
	}
	return &DiscoveryPoller{runner: runner, clock: clock}
}

// Start launches the polling goroutine. The first tick runs immediately.
func (p *DiscoveryPoller) Start(ctx context.Context, interval time.Duration, cb DiscoveryCallbacks) error {
	if interval <= 0 {
		return pkgerrors.New("poll interval must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return pkgerrors.New("discovery poller already started")
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(pollCtx, interval, cb, p.done)
	log.Debug().Dur("interval", interval).Msg("discovery poller started")
	return nil
}

// Stop cancels polling and waits for the goroutine to exit, after which no
// callback runs. It is idempotent and must not be called from a callback.
func (p *DiscoveryPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Poll runs a single `adb mdns services` and parses it.
func (p *DiscoveryPoller) Poll(ctx context.Context) ([]MdnsService, error) {
	res, err := p.runner.ExecuteCommand(ctx, mdnsServicesArgs, "")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "run adb mdns services")
	}
	if res.ExitCode != 0 {
		return nil, pkgerrors.Errorf("adb mdns services exited with code %d: %s",
			res.ExitCode, commandOutputSummary(res))
	}
	return ParseMdnsServices(res.Stdout)
}

func (p *DiscoveryPoller) run(ctx context.Context, interval time.Duration, cb DiscoveryCallbacks, done chan struct{}) {
	defer close(done)
	for {
		p.tick(ctx, cb)
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(interval):
		}
	}
}

func (p *DiscoveryPoller) tick(ctx context.Context, cb DiscoveryCallbacks) {
	services, err := p.Poll(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		// a glitch keeps the previous snapshot so nothing flaps
		log.Warn().Err(err).Msg("mdns services poll failed, skipping tick")
		return
	}
	arrived, departed, updated := diffSnapshots(p.last, services)
	p.last = services

	dispatch := func(fn func(MdnsService), list []MdnsService) {
		if fn == nil {
			return
		}
		for _, svc := range list {
			if ctx.Err() != nil {
				return
			}
			fn(svc)
		}
	}
	dispatch(cb.OnArrive, arrived)
	dispatch(cb.OnUpdate, updated)
	dispatch(cb.OnDepart, departed)
}

// diffSnapshots compares two snapshots by service name. Arrivals and updates
// keep the order of next, departures the order of prev.
func diffSnapshots(prev, next []MdnsService) (arrived, departed, updated []MdnsService) {
	prevByName := make(map[string]MdnsService, len(prev))
	for _, svc := range prev {
		prevByName[svc.ServiceName] = svc
	}
	nextNames := make(map[string]struct{}, len(next))
	for _, svc := range next {
		nextNames[svc.ServiceName] = struct{}{}
		old, ok := prevByName[svc.ServiceName]
		switch {
		case !ok:
			arrived = append(arrived, svc)
		case old != svc:
			updated = append(updated, svc)
		}
	}
	for _, svc := range prev {
		if _, ok := nextNames[svc.ServiceName]; !ok {
			departed = append(departed, svc)
		}
	}
	return arrived, departed, updated
}
