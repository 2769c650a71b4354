package pairing

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval          = time.Second
	DefaultMaxConcurrentCommands = 4
)

// OrchestratorConfig controls an Orchestrator. Zero values pick defaults.
type OrchestratorConfig struct {
	PollInterval          time.Duration
	MaxConcurrentCommands int
	Random                RandomSource
	Clock                 Clock
	Recorder              Recorder
}

type phase int

const (
	phaseProbing phase = iota
	phaseRunning
	phaseStopping
)

type (
	msgProbeDone struct {
		outcome ProbeOutcome
		version string
		err     error
	}
	msgArrive  struct{ svc MdnsService }
	msgDepart  struct{ svc MdnsService }
	msgUpdate  struct{ svc MdnsService }
	msgSession struct{ info SessionInfo }
	msgSubmit  struct {
		name, code string
		reply      chan submitReply
	}
	msgServices struct{ reply chan []MdnsService }
	msgClose    struct{}
)

type submitReply struct {
	sessionID string
	err       error
}

// Orchestrator sequences one Wi-Fi pairing dialog: it checks mDNS support,
// publishes a QR secret, polls discovery, pairs the QR service as soon as it
// shows up and pairs code services when the caller supplies a code.
//
// All state changes happen on a single loop goroutine; commands and device
// waits run on their own goroutines and report back through a mailbox.
type Orchestrator struct {
	exec   Executor
	cfg    OrchestratorConfig
	secret QrCodeSecret
	poller *DiscoveryPoller

	inbox    *mailbox
	events   *eventQueue
	loopDone chan struct{}
	workers  sync.WaitGroup

	mu      sync.Mutex
	running bool
	closed  bool

	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	// owned by the loop goroutine
	phase        phase
	offered      []MdnsService
	qrSession    *Session
	qrService    *MdnsService
	qrRetry      bool
	codeSessions map[string]*Session
	active       map[string]*Session
	paired       map[string]struct{}
}

// NewOrchestrator builds an orchestrator and generates its QR secret.
func NewOrchestrator(exec Executor, cfg OrchestratorConfig) (*Orchestrator, error) {
	if exec == nil {
		return nil, pkgerrors.New("executor cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrentCommands == 0 {
		cfg.MaxConcurrentCommands = DefaultMaxConcurrentCommands
	}
	if cfg.Random == nil {
		cfg.Random = defaultRandom()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	limited := newLimitedExecutor(exec, cfg.MaxConcurrentCommands)
	return &Orchestrator{
		exec:         limited,
		cfg:          cfg,
		secret:       GenerateQrCodeSecret(cfg.Random),
		poller:       NewDiscoveryPoller(limited, cfg.Clock),
		inbox:        newMailbox(),
		events:       newEventQueue(),
		loopDone:     make(chan struct{}),
		codeSessions: make(map[string]*Session),
		active:       make(map[string]*Session),
		paired:       make(map[string]struct{}),
	}, nil
}

func defaultRandom() RandomSource {
	var seed int64
	if err := binary.Read(crand.Reader, binary.LittleEndian, &seed); err != nil {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Secret returns the QR secret generated for this orchestrator.
func (o *Orchestrator) Secret() QrCodeSecret { return o.secret }

// Events returns the event stream. It is closed after EventStopped. Read it
// until it is closed or call DiscardEvents; an abandoned stream otherwise
// keeps its forwarding goroutine blocked.
func (o *Orchestrator) Events() <-chan Event { return o.events.out }

// DiscardEvents drops undelivered and future events and closes the stream. Use
// it when the reader stops before the stream closed.
func (o *Orchestrator) DiscardEvents() { o.events.discard() }

// Start launches the orchestration and returns immediately. Cancelling ctx has
// the same effect as Close.
func (o *Orchestrator) Start(ctx context.Context) error {
	if ctx == nil {
		return pkgerrors.New("context cannot be nil")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOrchestratorClosed
	}
	if o.running {
		return pkgerrors.New("orchestrator already started")
	}
	o.running = true
	o.ctx, o.cancel = context.WithCancel(ctx)
	go o.loop()
	return nil
}

// Close stops discovery, cancels every unfinished session and waits until each
// of them has reported its terminal state. It is idempotent.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		running := o.running
		o.closed = true
		o.mu.Unlock()
		if !running {
			o.events.push(Event{Type: EventStopped})
			o.events.close()
			close(o.loopDone)
			return
		}
		o.inbox.post(msgClose{})
	})
	<-o.loopDone
	return nil
}

// SubmitPairingCode starts a code pairing session for a discovered service. A
// session already in flight or succeeded for the same service is returned
// unchanged; a failed one is replaced.
func (o *Orchestrator) SubmitPairingCode(ctx context.Context, serviceName, code string) (string, error) {
	code, err := NormalizePairingCode(code)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if !running {
		return "", pkgerrors.New("orchestrator not started")
	}
	reply := make(chan submitReply, 1)
	o.inbox.post(msgSubmit{name: serviceName, code: code, reply: reply})
	select {
	case r := <-reply:
		return r.sessionID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-o.loopDone:
		select {
		case r := <-reply:
			return r.sessionID, r.err
		default:
			return "", ErrOrchestratorClosed
		}
	}
}

// Services returns the code-eligible services currently offered, in discovery order.
func (o *Orchestrator) Services() []MdnsService {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if !running {
		return nil
	}
	reply := make(chan []MdnsService, 1)
	o.inbox.post(msgServices{reply: reply})
	select {
	case list := <-reply:
		return list
	case <-o.loopDone:
		return nil
	}
}

func (o *Orchestrator) loop() {
	defer close(o.loopDone)
	o.phase = phaseProbing
	o.events.push(Event{Type: EventMdnsCheckStarted})
	o.spawn(func() {
		outcome, version, err := Probe(o.ctx, o.exec)
		o.inbox.post(msgProbeDone{outcome: outcome, version: version, err: err})
	})

	ctxDone := o.ctx.Done()
	for {
		select {
		case <-o.inbox.signal:
		case <-ctxDone:
			ctxDone = nil
			o.beginShutdown()
		}
		for _, msg := range o.inbox.drain() {
			o.handle(msg)
		}
		if o.phase == phaseStopping && len(o.active) == 0 {
			o.workers.Wait()
			log.Info().Msg("pairing orchestrator stopped")
			o.events.push(Event{Type: EventStopped})
			o.events.close()
			return
		}
	}
}

func (o *Orchestrator) spawn(fn func()) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		fn()
	}()
}

func (o *Orchestrator) handle(msg any) {
	switch m := msg.(type) {
	case msgProbeDone:
		o.onProbeDone(m)
	case msgArrive:
		if o.phase == phaseRunning {
			o.onArrive(m.svc)
		}
	case msgUpdate:
		if o.phase == phaseRunning {
			o.onUpdate(m.svc)
		}
	case msgDepart:
		if o.phase == phaseRunning {
			o.onDepart(m.svc)
		}
	case msgSession:
		o.onSession(m.info)
	case msgSubmit:
		id, err := o.onSubmit(m.name, m.code)
		m.reply <- submitReply{sessionID: id, err: err}
	case msgServices:
		m.reply <- append([]MdnsService(nil), o.offered...)
	case msgClose:
		o.beginShutdown()
	}
}

func (o *Orchestrator) onProbeDone(m msgProbeDone) {
	if o.phase != phaseProbing {
		return
	}
	if m.err != nil {
		o.fail(m.err)
		return
	}
	if m.outcome != MdnsReady {
		o.fail(NewError(m.outcome.Kind(), "", nil))
		return
	}
	log.Info().Str("daemon_version", m.version).Msg("adb mdns ready")
	o.events.push(Event{Type: EventMdnsReady, DaemonVersion: m.version})
	secret := o.secret
	o.events.push(Event{Type: EventQrCodeReady, Secret: &secret})

	err := o.poller.Start(o.ctx, o.cfg.PollInterval, DiscoveryCallbacks{
		OnArrive: func(svc MdnsService) { o.inbox.post(msgArrive{svc: svc}) },
		OnDepart: func(svc MdnsService) { o.inbox.post(msgDepart{svc: svc}) },
		OnUpdate: func(svc MdnsService) { o.inbox.post(msgUpdate{svc: svc}) },
	})
	if err != nil {
		o.fail(err)
		return
	}
	o.phase = phaseRunning
}

func (o *Orchestrator) fail(err error) {
	log.Error().Err(err).Msg("pairing orchestration failed")
	o.events.push(Event{Type: EventFailed, Err: err})
	o.beginShutdown()
}

func (o *Orchestrator) onArrive(svc MdnsService) {
	name := svc.ServiceName
	switch {
	case name == o.secret.ServiceName:
		log.Info().Str("service", name).Str("endpoint", svc.Endpoint()).Msg("qr code service discovered")
		o.offerQrService(svc)
	case svc.ServiceType == ServiceTypeQrCode:
		log.Debug().Str("service", name).Msg("ignoring qr code service of another session")
	default:
		if _, ok := o.paired[name]; ok {
			return
		}
		if o.offeredIndex(name) >= 0 {
			return
		}
		o.offered = append(o.offered, svc)
		log.Info().Str("service", name).Str("endpoint", svc.Endpoint()).Msg("pairing code service discovered")
		o.events.push(Event{Type: EventServiceDiscovered, Service: &svc})
	}
}

func (o *Orchestrator) onUpdate(svc MdnsService) {
	if svc.ServiceName == o.secret.ServiceName {
		log.Info().Str("endpoint", svc.Endpoint()).Msg("qr code service moved")
		o.offerQrService(svc)
		return
	}
	idx := o.offeredIndex(svc.ServiceName)
	if idx < 0 {
		return
	}
	o.offered[idx] = svc
	o.events.push(Event{Type: EventServiceUpdated, Service: &svc})
}

func (o *Orchestrator) onDepart(svc MdnsService) {
	if svc.ServiceName == o.secret.ServiceName {
		o.qrService, o.qrRetry = nil, false
		return
	}
	if s := o.codeSessions[svc.ServiceName]; s != nil && s.Info().State == StateIdle {
		s.Cancel()
	}
	idx := o.offeredIndex(svc.ServiceName)
	if idx < 0 {
		return
	}
	lost := o.offered[idx]
	o.offered = append(o.offered[:idx], o.offered[idx+1:]...)
	log.Info().Str("service", svc.ServiceName).Msg("pairing code service lost")
	o.events.push(Event{Type: EventServiceLost, Service: &lost})
}

// offerQrService records the latest QR advertisement and pairs it unless a QR
// session is already in flight or done. An advertisement seen while a session
// is in flight is paired once that session fails.
func (o *Orchestrator) offerQrService(svc MdnsService) {
	svc.ServiceType = ServiceTypeQrCode
	o.qrService = &svc
	if o.qrSession != nil {
		switch o.qrSession.Info().State {
		case StateFailed:
			// pair the new advertisement
		case StateSucceeded:
			return
		default:
			o.qrRetry = true
			return
		}
	}
	o.startQrSession()
}

func (o *Orchestrator) startQrSession() {
	o.qrRetry = false
	o.qrSession = o.startSession(ServiceTypeQrCode, *o.qrService, o.secret.Password)
}

func (o *Orchestrator) onSubmit(name, code string) (string, error) {
	switch o.phase {
	case phaseStopping:
		return "", ErrOrchestratorClosed
	case phaseProbing:
		return "", ErrServiceNotFound
	}
	if existing := o.codeSessions[name]; existing != nil {
		if st := existing.Info().State; st != StateFailed {
			return existing.ID(), nil
		}
	}
	idx := o.offeredIndex(name)
	if idx < 0 {
		return "", ErrServiceNotFound
	}
	s := o.startSession(ServiceTypePairingCode, o.offered[idx], code)
	o.codeSessions[name] = s
	return s.ID(), nil
}

func (o *Orchestrator) onSession(info SessionInfo) {
	o.events.push(Event{Type: EventSessionState, Session: &info})
	if !info.State.Terminal() {
		return
	}
	delete(o.active, info.ID)
	if info.State != StateSucceeded {
		if o.phase == phaseRunning && o.qrRetry && o.qrService != nil &&
			o.qrSession != nil && o.qrSession.ID() == info.ID {
			log.Info().Str("endpoint", o.qrService.Endpoint()).Msg("retrying qr code pairing on new advertisement")
			o.startQrSession()
		}
		return
	}
	name := info.Service.ServiceName
	o.paired[name] = struct{}{}
	if idx := o.offeredIndex(name); idx >= 0 {
		o.offered = append(o.offered[:idx], o.offered[idx+1:]...)
	}
}

func (o *Orchestrator) startSession(kind ServiceType, svc MdnsService, secret string) *Session {
	s := newSession(o.ctx, kind, svc, secret, sessionOptions{
		exec:     o.exec,
		recorder: o.cfg.Recorder,
		clock:    o.cfg.Clock,
		notify:   func(info SessionInfo) { o.inbox.post(msgSession{info: info}) },
	})
	o.active[s.ID()] = s
	o.spawn(s.Run)
	return s
}

func (o *Orchestrator) beginShutdown() {
	if o.phase == phaseStopping {
		return
	}
	o.phase = phaseStopping
	o.poller.Stop()
	for _, s := range o.active {
		s.Cancel()
	}
	o.cancel()
}

func (o *Orchestrator) offeredIndex(name string) int {
	for i, svc := range o.offered {
		if svc.ServiceName == name {
			return i
		}
	}
	return -1
}
