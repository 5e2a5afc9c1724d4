package ranging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts (spec 4.G, spec 5). All are overridable per session via
// SessionTimeouts.
const (
	DefaultNoInitialDataTimeout = 3 * time.Second
	DefaultNoUpdatedDataTimeout = 2 * time.Second
	DefaultBackgroundTimeout    = 10 * time.Second
	DefaultForceCloseTimeout    = 2 * time.Second
)

// SessionTimeouts holds the per-session configurable timer durations (spec
// 4.G, spec 5).
type SessionTimeouts struct {
	NoInitialData time.Duration
	NoUpdatedData time.Duration
	Background    time.Duration
	ForceClose    time.Duration
}

// DefaultSessionTimeouts returns the spec-default timeout set.
func DefaultSessionTimeouts() SessionTimeouts {
	return SessionTimeouts{
		NoInitialData: DefaultNoInitialDataTimeout,
		NoUpdatedData: DefaultNoUpdatedDataTimeout,
		Background:    DefaultBackgroundTimeout,
		ForceClose:    DefaultForceCloseTimeout,
	}
}

// SessionListener receives the peer-session-level lifecycle events the
// aggregator fans out to the caller (spec 4.G, 4.H).
type SessionListener struct {
	// OnPeerStarted fires at most once per session: the first time any
	// adapter reports started (spec 4.G invariant).
	OnPeerStarted func()
	// OnAdapterStarted fires once per adapter, forwarded 1:1 to the
	// aggregator's on_started(peer, tech) (spec 4.H).
	OnAdapterStarted func(tech TechnologyTag)
	OnPeerOpenFailed func(reason ClosedReason)
	OnRangingData    func(data RangingData)
	OnPeerStopped    func(reason ClosedReason)
}

// adapterEntry pairs an adapter with the technology it was started for.
type adapterEntry struct {
	adapter RangingAdapter
	tech    TechnologyTag
}

// recvEvent is something that happened on an adapter, delivered to the
// session's own goroutine over a buffered channel -- mirrors the
// non-blocking, drop-and-log delivery shape the teacher's session actor
// uses for received packets.
type recvEvent struct {
	kind     recvKind
	tech     TechnologyTag
	data     RangingData
	closeWhy ClosedReason
}

type recvKind uint8

const (
	recvStarted recvKind = iota
	recvStopped
	recvData
	recvClosed

	// stopRequestKind is a distinguished recvKind used only by Stop; kept
	// out of the main iota block so it can never collide with a real
	// adapter event.
	stopRequestKind recvKind = 255
)

// PeerSession supervises one remote peer: its set of active ranging
// adapters, fusion, timeouts, backgrounding, and measurement-limit
// enforcement (spec 4.G). All mutable state is touched only from the
// session's own goroutine (run); external callers only send on eventCh or
// read the atomic fields.
type PeerSession struct {
	peer   DeviceId
	cfg    SessionConfig
	logger *slog.Logger

	timeouts SessionTimeouts

	listener SessionListener

	state        atomic.Uint32 // State
	measurements atomic.Uint64

	gate  *DataNotificationGate
	fuser *PreferentialFuser

	eventCh chan recvEvent
	stopCh  chan struct{}

	mu       sync.Mutex // guards adapters, only touched from run()
	adapters map[TechnologyTag]*adapterEntry
	started  bool // peer_started raised at most once

	noInitialData *time.Timer
	noUpdatedData *time.Timer
	background    *time.Timer
	forceClose    *time.Timer

	privileged bool

	// pendingStopReason is the reason ActionRaisePeerStoppedNormal reports
	// when the session was driven to STOPPING by an explicit stop, set by
	// whichever caller drives EventStopRequested just before doing so.
	pendingStopReason ClosedReason

	// lastAdapterCloseReason is the reason ActionRaisePeerStoppedNormal
	// reports when every adapter stopped on its own (STARTED -> STOPPED via
	// EventAdapterSetEmpty): "reason = last reported" (spec 4.G).
	lastAdapterCloseReason ClosedReason

	doneCh chan struct{}
}

// NewPeerSession creates a PeerSession for peer in state IDLE. Call Start
// to begin ranging with the given adapter configs.
func NewPeerSession(peer DeviceId, cfg SessionConfig, listener SessionListener, logger *slog.Logger, opts ...SessionOption) *PeerSession {
	s := &PeerSession{
		peer:     peer,
		cfg:      cfg,
		listener: listener,
		logger:   logger.With(slog.String("peer", peer.String())),
		timeouts: DefaultSessionTimeouts(),
		eventCh:  make(chan recvEvent, 64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		adapters: make(map[TechnologyTag]*adapterEntry),
		privileged: true,
	}
	s.state.Store(uint32(StateIdle))
	s.gate = NewDataNotificationGate(cfg.DataNotification, cfg.BackgroundNotification)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionOption configures optional PeerSession parameters.
type SessionOption func(*PeerSession)

// WithSessionTimeouts overrides the default timer durations.
func WithSessionTimeouts(t SessionTimeouts) SessionOption {
	return func(s *PeerSession) { s.timeouts = t }
}

// WithPreferentialFuser enables sensor fusion using the preferential
// policy (spec 4.K).
func WithPreferentialFuser(f *PreferentialFuser) SessionOption {
	return func(s *PeerSession) { s.fuser = f }
}

// WithPrivileged marks whether the caller is privileged; only
// non-privileged callers are subject to the background-timeout stop
// policy (spec 4.G).
func WithPrivileged(privileged bool) SessionOption {
	return func(s *PeerSession) { s.privileged = privileged }
}

// State returns the session's current FSM state. Safe for concurrent use.
func (s *PeerSession) State() State {
	return State(s.state.Load())
}

// MeasurementCount returns the number of accepted measurements emitted so
// far. Safe for concurrent use.
func (s *PeerSession) MeasurementCount() uint64 {
	return s.measurements.Load()
}

// Start begins the session's goroutine and instantiates one adapter per
// (tech, config) pair (spec 4.G step 1-3). Start is idempotent only from
// IDLE; calling it again is an error.
func (s *PeerSession) Start(ctx context.Context, configs map[TechnologyTag]AdapterConfig, factory func(AdapterConfig) (RangingAdapter, error)) error {
	if s.State() != StateIdle {
		return ErrSessionNotIdle
	}

	go s.run(ctx)

	result := ApplyEvent(StateIdle, EventStart)
	s.transition(result)

	for tech, cfg := range configs {
		adapter, err := factory(cfg)
		if err != nil {
			s.logger.Warn("adapter factory failed", slog.String("technology", tech.String()), slog.String("error", err.Error()))
			continue
		}

		entry := &adapterEntry{adapter: adapter, tech: tech}
		s.mu.Lock()
		s.adapters[tech] = entry
		s.mu.Unlock()

		callbacks := s.callbacksFor(tech)
		if err := adapter.Start(cfg, callbacks); err != nil {
			s.logger.Warn("adapter start failed", slog.String("technology", tech.String()), slog.String("error", err.Error()))
			s.deliver(recvEvent{kind: recvClosed, tech: tech, closeWhy: ReasonFailedToStart})
		}
	}

	return nil
}

// callbacksFor builds the AdapterCallbacks an adapter for tech reports
// into. Each callback only posts a recvEvent to the session's own
// goroutine -- it never touches session state directly (spec 5: "adapters
// must post callbacks to the session thread").
func (s *PeerSession) callbacksFor(tech TechnologyTag) AdapterCallbacks {
	return AdapterCallbacks{
		OnStarted: func() {
			s.deliver(recvEvent{kind: recvStarted, tech: tech})
		},
		OnStopped: func() {
			s.deliver(recvEvent{kind: recvStopped, tech: tech})
		},
		OnRangingData: func(data RangingData) {
			s.deliver(recvEvent{kind: recvData, tech: tech, data: data})
		},
		OnClosed: func(reason ClosedReason) {
			s.deliver(recvEvent{kind: recvClosed, tech: tech, closeWhy: reason})
		},
	}
}

// deliver is the non-blocking, drop-and-log send into the session's event
// channel used by every adapter callback.
func (s *PeerSession) deliver(ev recvEvent) {
	select {
	case s.eventCh <- ev:
	default:
		s.logger.Warn("peer session event channel full, dropping event",
			slog.String("technology", ev.tech.String()), slog.Any("kind", ev.kind))
	}
}

// Stop requests an orderly stop (spec 4.G "stop()").
func (s *PeerSession) Stop() {
	s.deliver(recvEvent{kind: stopRequestKind, closeWhy: ReasonLocalRequest})
}

// run is the session's single goroutine: all PeerSession mutable state is
// touched only here (spec 5 "actor-style split").
func (s *PeerSession) run(ctx context.Context) {
	defer close(s.doneCh)

	s.noInitialData = time.NewTimer(s.timeouts.NoInitialData)
	defer s.noInitialData.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.eventCh:
			if ev.kind == stopRequestKind {
				s.handleStopRequested(ev.closeWhy)
			} else {
				s.handleAdapterEvent(ev)
			}
		case <-timerC(s.noInitialData):
			s.handleEvent(EventNoInitialDataTimeout)
		case <-timerC(s.noUpdatedData):
			s.handleNoUpdatedDataTimeout()
		case <-timerC(s.background):
			s.handleBackgroundTimeout()
		case <-timerC(s.forceClose):
			s.handleEvent(EventForceCloseTimeout)
		}

		if s.State() == StateStopped {
			return
		}
	}
}

// timerC returns t.C, or a nil channel (which blocks forever in a select)
// if t is nil -- avoids a dozen nil checks in run's select.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (s *PeerSession) handleAdapterEvent(ev recvEvent) {
	switch ev.kind {
	case recvStarted:
		if s.listener.OnAdapterStarted != nil {
			s.listener.OnAdapterStarted(ev.tech)
		}
		if s.State() == StateInitializing {
			s.handleEvent(EventAdapterStarted)
		}
	case recvData:
		s.handleRangingData(ev.data)
	case recvStopped:
		s.removeAdapter(ev.tech, ReasonRequested)
	case recvClosed:
		s.removeAdapter(ev.tech, ev.closeWhy)
	}
}

func (s *PeerSession) handleRangingData(data RangingData) {
	if s.State() != StateStarted {
		return
	}

	var distance float64
	if data.Distance != nil {
		distance = data.Distance.Value
	}
	if !s.gate.Accept(distance) {
		return
	}

	if s.fuser != nil {
		data = s.fuser.Choose([]RangingData{data})
	}

	count := s.measurements.Add(1)
	if s.cfg.MeasurementLimit > 0 && count > s.cfg.MeasurementLimit {
		// The (limit+1)-th accepted measurement is never emitted (spec
		// 4.G invariant).
		return
	}

	if s.listener.OnRangingData != nil {
		s.listener.OnRangingData(data)
	}

	s.resetTimer(&s.noUpdatedData, s.timeouts.NoUpdatedData)

	if s.cfg.MeasurementLimit > 0 && count == s.cfg.MeasurementLimit {
		s.handleStopRequested(ReasonLocalRequest)
	}
}

func (s *PeerSession) removeAdapter(tech TechnologyTag, reason ClosedReason) {
	s.mu.Lock()
	delete(s.adapters, tech)
	remaining := len(s.adapters)
	s.mu.Unlock()

	s.lastAdapterCloseReason = reason

	if remaining > 0 {
		return
	}

	switch s.State() {
	case StateStarted:
		s.handleEvent(EventAdapterSetEmpty)
	case StateStopping:
		s.handleEvent(EventAllAdaptersStopped)
	}
}

func (s *PeerSession) handleStopRequested(reason ClosedReason) {
	s.pendingStopReason = reason
	s.handleEvent(EventStopRequested)
}

func (s *PeerSession) handleNoUpdatedDataTimeout() {
	// A stalled adapter is treated like a lost connection: stop it the
	// same way an explicit stop would, surfacing LOST_CONNECTION instead
	// of LOCAL_REQUEST.
	s.handleStopRequested(ReasonLostConnection)
}

func (s *PeerSession) handleBackgroundTimeout() {
	if s.privileged {
		return
	}
	s.mu.Lock()
	for _, entry := range s.adapters {
		entry.adapter.OnAppBackgroundTimeout()
	}
	s.mu.Unlock()
	s.handleStopRequested(ReasonSystemPolicy)
}

// OnAppBackground forwards backgrounding to every active adapter and, for
// non-privileged sessions, arms the background-timeout (spec 4.G).
func (s *PeerSession) OnAppBackground() {
	s.gate.AppMovedToBackground()
	s.mu.Lock()
	for _, entry := range s.adapters {
		entry.adapter.OnAppBackground()
	}
	s.mu.Unlock()
	if !s.privileged {
		s.resetTimer(&s.background, s.timeouts.Background)
	}
}

// OnAppForeground forwards foregrounding to every active adapter and
// disarms the background-timeout.
func (s *PeerSession) OnAppForeground() {
	s.gate.AppMovedToForeground()
	s.mu.Lock()
	for _, entry := range s.adapters {
		entry.adapter.OnAppForeground()
	}
	s.mu.Unlock()
	s.stopTimer(&s.background)
}

// handleEvent applies evt to the FSM and executes the resulting actions.
// Must only be called from run's goroutine.
func (s *PeerSession) handleEvent(evt Event) {
	result := ApplyEvent(s.State(), evt)
	s.transition(result)
}

func (s *PeerSession) transition(result FSMResult) {
	if result.Changed {
		s.state.Store(uint32(result.NewState))
	}
	// EventAdapterSetEmpty drives STARTED -> STOPPED when every adapter
	// stopped on its own, with no explicit stop() in play: report the
	// last adapter-reported reason, not whatever a prior stop left behind.
	if result.OldState == StateStarted && result.NewState == StateStopped {
		s.pendingStopReason = s.lastAdapterCloseReason
	}
	for _, action := range result.Actions {
		s.executeAction(action)
	}
}

func (s *PeerSession) executeAction(action Action) {
	switch action {
	case ActionArmNoInitialDataTimer:
		s.resetTimer(&s.noInitialData, s.timeouts.NoInitialData)
	case ActionCancelNoInitialDataTimer:
		s.stopTimer(&s.noInitialData)
	case ActionRaisePeerStarted:
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		if s.listener.OnPeerStarted != nil {
			s.listener.OnPeerStarted()
		}
	case ActionIssueStopToAdapters:
		s.mu.Lock()
		entries := make([]*adapterEntry, 0, len(s.adapters))
		for _, e := range s.adapters {
			entries = append(entries, e)
		}
		s.mu.Unlock()
		for _, e := range entries {
			if err := e.adapter.Stop(); err != nil {
				s.logger.Warn("adapter stop failed", slog.String("technology", e.tech.String()), slog.String("error", err.Error()))
			}
		}
	case ActionArmForceCloseTimer:
		s.resetTimer(&s.forceClose, s.timeouts.ForceClose)
	case ActionCancelForceCloseTimer:
		s.stopTimer(&s.forceClose)
	case ActionRaisePeerStoppedNormal:
		s.stopTimer(&s.noUpdatedData)
		if s.listener.OnPeerStopped != nil {
			s.listener.OnPeerStopped(s.pendingStopReason)
		}
	case ActionRaisePeerStoppedForced:
		s.mu.Lock()
		entries := make([]*adapterEntry, 0, len(s.adapters))
		for _, e := range s.adapters {
			entries = append(entries, e)
		}
		s.adapters = make(map[TechnologyTag]*adapterEntry)
		s.mu.Unlock()
		for _, e := range entries {
			_ = e.adapter.Stop()
		}
		if s.listener.OnPeerStopped != nil {
			s.listener.OnPeerStopped(ReasonForceStopped)
		}
	case ActionRaiseOpenFailed:
		if s.listener.OnPeerOpenFailed != nil {
			s.listener.OnPeerOpenFailed(ReasonFailedToStart)
		}
	}
}

func (s *PeerSession) resetTimer(t **time.Timer, d time.Duration) {
	if *t == nil {
		*t = time.NewTimer(d)
		return
	}
	if !(*t).Stop() {
		select {
		case <-(*t).C:
		default:
		}
	}
	(*t).Reset(d)
}

func (s *PeerSession) stopTimer(t **time.Timer) {
	if *t == nil {
		return
	}
	if !(*t).Stop() {
		select {
		case <-(*t).C:
		default:
		}
	}
}

// Done returns a channel closed when the session's goroutine exits.
func (s *PeerSession) Done() <-chan struct{} {
	return s.doneCh
}
