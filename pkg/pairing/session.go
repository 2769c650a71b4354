package pairing

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionState is the state of one pairing attempt.
type SessionState int

const (
	StateIdle SessionState = iota
	StatePairing
	StateWaitingForDevice
	StateSucceeded
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePairing:
		return "pairing"
	case StateWaitingForDevice:
		return "waiting_for_device"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

type sessionEvent int

const (
	eventStart sessionEvent = iota
	eventPaired
	eventPairFailed
	eventDeviceOnline
	eventDeviceWaitFailed
	eventCancel
	// eventAbandon cancels a session that has not started yet.
	eventAbandon
)

// nextState is the complete transition table; ok is false when ev does not apply.
func nextState(from SessionState, ev sessionEvent) (to SessionState, ok bool) {
	if from.Terminal() {
		return from, false
	}
	switch {
	case ev == eventCancel:
		return StateFailed, true
	case from == StateIdle && ev == eventAbandon:
		return StateFailed, true
	case from == StateIdle && ev == eventStart:
		return StatePairing, true
	case from == StatePairing && ev == eventPaired:
		return StateWaitingForDevice, true
	case from == StatePairing && ev == eventPairFailed:
		return StateFailed, true
	case from == StateWaitingForDevice && ev == eventDeviceOnline:
		return StateSucceeded, true
	case from == StateWaitingForDevice && ev == eventDeviceWaitFailed:
		return StateFailed, true
	}
	return from, false
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ID        string
	Kind      ServiceType
	Service   MdnsService
	State     SessionState
	Result    *PairingResult
	Device    *OnlineDevice
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Session drives a single `adb pair` attempt and the wait for the device. It is
// single-use: once Succeeded or Failed it never changes again.
type Session struct {
	id       string
	kind     ServiceType
	service  MdnsService
	secret   string
	exec     Executor
	recorder Recorder
	clock    Clock
	notify   func(SessionInfo)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     SessionState
	result    *PairingResult
	device    *OnlineDevice
	err       error
	started   bool
	startedAt time.Time
	endedAt   time.Time
}

type sessionOptions struct {
	exec     Executor
	recorder Recorder
	clock    Clock
	notify   func(SessionInfo)
}

func newSession(parent context.Context, kind ServiceType, service MdnsService, secret string, opts sessionOptions) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.recorder == nil {
		opts.recorder = noopRecorder{}
	}
	if opts.clock == nil {
		opts.clock = RealClock
	}
	return &Session{
		id:       uuid.NewString(),
		kind:     kind,
		service:  service,
		secret:   secret,
		exec:     opts.exec,
		recorder: opts.recorder,
		clock:    opts.clock,
		notify:   opts.notify,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() SessionInfo {
	return SessionInfo{
		ID:        s.id,
		Kind:      s.kind,
		Service:   s.service,
		State:     s.state,
		Result:    s.result,
		Device:    s.device,
		Err:       s.err,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}

// Cancel abandons the session. An idle session fails immediately; a running one
// fails with KindCancelled as soon as its in-flight command or wait returns.
//
// Once Run has started the session, only Run moves it to a terminal state, so
// the recorder always sees the start before the finish.
func (s *Session) Cancel() {
	s.cancel()
	s.fire(eventAbandon, NewError(KindCancelled, s.service.ServiceName, context.Canceled))
}

// Run executes the session to completion on the calling goroutine.
func (s *Session) Run() {
	defer s.cancel()
	if !s.fire(eventStart, nil) {
		return
	}
	ctx := s.ctx
	name := s.service.ServiceName
	logger := log.With().Str("session", s.id).Str("service", name).Str("kind", s.kind.String()).Logger()

	s.recordStart()
	logger.Info().Str("endpoint", s.service.Endpoint()).Msg("pairing session started")

	res, err := s.exec.ExecuteCommand(ctx, []string{"pair", s.service.Endpoint()}, s.secret+lineSeparator())
	if ctx.Err() != nil {
		s.fire(eventCancel, NewError(KindCancelled, name, ctx.Err()))
		return
	}
	if err != nil {
		s.fire(eventPairFailed, NewError(KindPairCommandError, name, pkgerrors.Wrap(err, "run adb pair")))
		return
	}
	result, err := ParsePairResult(res)
	if err != nil {
		logger.Warn().Err(err).Msg("adb pair failed")
		s.fire(eventPairFailed, NewError(KindPairCommandError, name, err))
		return
	}
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	logger.Info().
		Str("connect_endpoint", result.Endpoint()).
		Str("mdns_service_id", result.MdnsServiceID).
		Msg("paired, waiting for device")
	if !s.fire(eventPaired, nil) {
		return
	}

	device, err := s.exec.WaitForOnlineDevice(ctx, *result)
	if ctx.Err() != nil && (err != nil || device == nil) {
		s.fire(eventCancel, NewError(KindCancelled, name, ctx.Err()))
		return
	}
	if err != nil || device == nil {
		if err == nil {
			err = pkgerrors.New("device wait returned no device")
		}
		s.fire(eventDeviceWaitFailed, NewError(KindDeviceWaitFailed, name, err))
		return
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	logger.Info().Str("device", device.ID).Str("display", device.DisplayString()).Msg("device online")
	s.fire(eventDeviceOnline, nil)
}

// fire applies ev and publishes the new snapshot. It returns false when the
// transition did not apply, which is how callers learn the session was cancelled.
func (s *Session) fire(ev sessionEvent, failure error) bool {
	s.mu.Lock()
	to, ok := nextState(s.state, ev)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.state = to
	if to == StatePairing {
		s.started = true
		s.startedAt = s.clock.Now()
	}
	if failure != nil {
		s.err = failure
	}
	if to.Terminal() {
		s.endedAt = s.clock.Now()
	}
	info := s.infoLocked()
	started := s.started
	s.mu.Unlock()

	if s.notify != nil {
		s.notify(info)
	}
	if to.Terminal() {
		if started {
			s.recordFinish(info)
		}
		close(s.done)
	}
	return true
}

func (s *Session) recordStart() {
	s.mu.Lock()
	rec := &SessionRecord{
		SessionID:       s.id,
		Kind:            s.kind.String(),
		ServiceName:     s.service.ServiceName,
		PairingEndpoint: s.service.Endpoint(),
		StartedAt:       s.startedAt,
	}
	s.mu.Unlock()
	if err := s.recorder.SessionStarted(context.Background(), rec); err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("session recorder start failed")
	}
}

func (s *Session) recordFinish(info SessionInfo) {
	out := &SessionOutcome{
		State:   info.State.String(),
		EndedAt: info.EndedAt,
		Elapsed: info.EndedAt.Sub(info.StartedAt),
	}
	if info.Result != nil {
		out.ConnectEndpoint = info.Result.Endpoint()
		out.MdnsServiceID = info.Result.MdnsServiceID
	}
	if info.Device != nil {
		out.DeviceSerial = info.Device.ID
		out.DeviceName = info.Device.DisplayString()
	}
	if info.Err != nil {
		out.ErrorKind = KindOf(info.Err).String()
		out.ErrorMessage = info.Err.Error()
	}
	if err := s.recorder.SessionFinished(context.Background(), info.ID, out); err != nil {
		log.Error().Err(err).Str("session", info.ID).Msg("session recorder finish failed")
	}
}

func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}
