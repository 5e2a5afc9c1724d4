package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-ranging/goranging/internal/ranging"
)

// notifyChSize sizes the aggregator's internal and public event channels.
// 64 covers bursts of lifecycle transitions across many peers without
// blocking a peer session's own goroutine.
const notifyChSize = 64

// EventKind is the kind of lifecycle event an Aggregator fans out (spec
// 4.H: on_opened / on_open_failed / on_started / on_results / on_stopped /
// on_closed).
type EventKind uint8

const (
	EventOpened EventKind = iota
	EventOpenFailed
	EventStarted
	EventAdapterStarted
	EventResults
	EventStopped
	EventClosed
)

var eventKindNames = [...]string{
	"Opened", "OpenFailed", "Started", "AdapterStarted", "Results", "Stopped", "Closed",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// Event is one lifecycle notification for one peer, fanned out on
// Aggregator.Events().
type Event struct {
	Peer       ranging.DeviceId
	Kind       EventKind
	Technology ranging.TechnologyTag
	Reason     ranging.ClosedReason
	Data       ranging.RangingData
}

// Snapshot is a read-only view of one open session.
type Snapshot struct {
	Peer             ranging.DeviceId
	State            ranging.State
	MeasurementCount uint64
}

type sessionEntry struct {
	session *ranging.PeerSession
	cancel  context.CancelFunc
}

// Aggregator owns every active ranging.PeerSession for the local device,
// keyed by peer, and fans their lifecycle callbacks out onto a single
// ordered event stream (spec 4.H): an RWMutex-guarded map plus a raw/public
// notification-channel pair drained by a dispatch goroutine.
type Aggregator struct {
	mu       sync.RWMutex
	sessions map[ranging.DeviceId]*sessionEntry

	logger *slog.Logger

	defaultTimeouts ranging.SessionTimeouts
	privileged      bool

	rawNotifyCh    chan Event
	publicNotifyCh chan Event
}

// Option configures optional Aggregator parameters.
type Option func(*Aggregator)

// WithDefaultTimeouts overrides the timeout set every opened session
// starts with, unless OpenSession is given its own.
func WithDefaultTimeouts(t ranging.SessionTimeouts) Option {
	return func(a *Aggregator) { a.defaultTimeouts = t }
}

// WithPrivileged marks every session this aggregator opens as privileged
// or not (spec 4.G background-timeout policy).
func WithPrivileged(privileged bool) Option {
	return func(a *Aggregator) { a.privileged = privileged }
}

// New creates an empty Aggregator and starts its dispatch goroutine.
func New(ctx context.Context, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		sessions:        make(map[ranging.DeviceId]*sessionEntry),
		logger:          logger.With(slog.String("component", "aggregator")),
		defaultTimeouts: ranging.DefaultSessionTimeouts(),
		rawNotifyCh:     make(chan Event, notifyChSize),
		publicNotifyCh:  make(chan Event, notifyChSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.runDispatch(ctx)
	return a
}

// Events returns the fanned-out event stream. Buffered; a slow consumer
// causes the dispatch goroutine to drop and log, never to block a peer
// session.
func (a *Aggregator) Events() <-chan Event {
	return a.publicNotifyCh
}

// OpenSessionConfig bundles one OpenSession call's inputs.
type OpenSessionConfig struct {
	Peer          ranging.DeviceId
	SessionConfig ranging.SessionConfig
	Adapters      map[ranging.TechnologyTag]ranging.AdapterConfig
	Factory       func(ranging.AdapterConfig) (ranging.RangingAdapter, error)
	Fuser         *ranging.PreferentialFuser
}

// OpenSession creates and starts a PeerSession for cfg.Peer, registers it,
// and wires its SessionListener to post into the aggregator's event
// stream. Returns ErrDuplicateSession if a session is already open for
// that peer.
func (a *Aggregator) OpenSession(ctx context.Context, cfg OpenSessionConfig) (*ranging.PeerSession, error) {
	a.mu.Lock()
	if _, exists := a.sessions[cfg.Peer]; exists {
		a.mu.Unlock()
		return nil, fmt.Errorf("open session for peer %s: %w", cfg.Peer, ErrDuplicateSession)
	}
	a.mu.Unlock()

	listener := a.listenerFor(cfg.Peer)

	sessOpts := []ranging.SessionOption{
		ranging.WithSessionTimeouts(a.defaultTimeouts),
		ranging.WithPrivileged(a.privileged),
	}
	if cfg.Fuser != nil {
		sessOpts = append(sessOpts, ranging.WithPreferentialFuser(cfg.Fuser))
	}

	sess := ranging.NewPeerSession(cfg.Peer, cfg.SessionConfig, listener, a.logger, sessOpts...)

	// Session lifetime is decoupled from the caller's context the same way
	// the teacher's Manager decouples a BFD session from the RPC context
	// that created it: graceful shutdown stops sessions explicitly instead
	// of relying on an incidental cancellation.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	a.mu.Lock()
	if _, exists := a.sessions[cfg.Peer]; exists {
		a.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("open session for peer %s: %w", cfg.Peer, ErrDuplicateSession)
	}
	a.sessions[cfg.Peer] = &sessionEntry{session: sess, cancel: cancel}
	a.mu.Unlock()

	if err := sess.Start(sessCtx, cfg.Adapters, cfg.Factory); err != nil {
		a.mu.Lock()
		delete(a.sessions, cfg.Peer)
		a.mu.Unlock()
		cancel()
		a.post(Event{Peer: cfg.Peer, Kind: EventOpenFailed, Reason: ranging.ReasonFailedToStart})
		return nil, fmt.Errorf("open session for peer %s: %w", cfg.Peer, err)
	}

	a.post(Event{Peer: cfg.Peer, Kind: EventOpened})
	a.logger.Info("session opened", slog.String("peer", cfg.Peer.String()))
	return sess, nil
}

// listenerFor builds the SessionListener a newly-opened session reports
// into: every callback only posts an Event to rawNotifyCh, mirroring
// ranging.PeerSession's own rule that callbacks never touch state
// directly.
func (a *Aggregator) listenerFor(peer ranging.DeviceId) ranging.SessionListener {
	return ranging.SessionListener{
		OnPeerStarted: func() {
			a.post(Event{Peer: peer, Kind: EventStarted})
		},
		OnAdapterStarted: func(tech ranging.TechnologyTag) {
			a.post(Event{Peer: peer, Kind: EventAdapterStarted, Technology: tech})
		},
		OnPeerOpenFailed: func(reason ranging.ClosedReason) {
			a.removeAndPost(peer, Event{Peer: peer, Kind: EventOpenFailed, Reason: reason})
		},
		OnRangingData: func(data ranging.RangingData) {
			a.post(Event{Peer: peer, Kind: EventResults, Technology: data.Technology, Data: data})
		},
		OnPeerStopped: func(reason ranging.ClosedReason) {
			a.removeAndPost(peer, Event{Peer: peer, Kind: EventStopped, Reason: reason})
		},
	}
}

// removeAndPost drops peer's entry (if present) and posts ev, used for the
// two listener callbacks that mean the session is no longer usable.
func (a *Aggregator) removeAndPost(peer ranging.DeviceId, ev Event) {
	a.mu.Lock()
	entry, ok := a.sessions[peer]
	if ok {
		delete(a.sessions, peer)
	}
	a.mu.Unlock()

	if ok {
		entry.cancel()
	}
	a.post(ev)
	a.post(Event{Peer: peer, Kind: EventClosed, Reason: ev.Reason})
}

// CloseSession requests a graceful stop of peer's session (spec 4.G
// Stop()). The session itself drives OnPeerStopped once its FSM reaches
// STOPPED; the map entry is removed at that point, not here.
func (a *Aggregator) CloseSession(peer ranging.DeviceId) error {
	a.mu.RLock()
	entry, ok := a.sessions[peer]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("close session for peer %s: %w", peer, ErrSessionNotFound)
	}
	entry.session.Stop()
	return nil
}

// Lookup returns the PeerSession open for peer, if any.
func (a *Aggregator) Lookup(peer ranging.DeviceId) (*ranging.PeerSession, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.sessions[peer]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Sessions returns a point-in-time snapshot of every open session.
func (a *Aggregator) Sessions() []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Snapshot, 0, len(a.sessions))
	for peer, entry := range a.sessions {
		out = append(out, Snapshot{
			Peer:             peer,
			State:            entry.session.State(),
			MeasurementCount: entry.session.MeasurementCount(),
		})
	}
	return out
}

// ReconcileEntry describes one desired open session for Reconcile.
type ReconcileEntry struct {
	Config  OpenSessionConfig
	Context context.Context
}

// Reconcile diffs desired against the currently open sessions: peers
// present in desired but not currently open are opened; peers currently
// open but absent from desired are closed gracefully. Peers present in
// both are left untouched -- parameter changes require closing and
// reopening explicitly.
func (a *Aggregator) Reconcile(desired []ReconcileEntry) (opened, closed int, err error) {
	desiredPeers := make(map[ranging.DeviceId]ReconcileEntry, len(desired))
	for _, e := range desired {
		desiredPeers[e.Config.Peer] = e
	}

	a.mu.RLock()
	currentPeers := make([]ranging.DeviceId, 0, len(a.sessions))
	for peer := range a.sessions {
		currentPeers = append(currentPeers, peer)
	}
	a.mu.RUnlock()

	var errs []error

	for _, peer := range currentPeers {
		if _, want := desiredPeers[peer]; want {
			continue
		}
		if cErr := a.CloseSession(peer); cErr != nil {
			errs = append(errs, fmt.Errorf("reconcile close %s: %w", peer, cErr))
			continue
		}
		closed++
	}

	for peer, entry := range desiredPeers {
		if _, exists := a.Lookup(peer); exists {
			continue
		}
		if _, oErr := a.OpenSession(entry.Context, entry.Config); oErr != nil {
			errs = append(errs, fmt.Errorf("reconcile open %s: %w", peer, oErr))
			continue
		}
		opened++
	}

	if len(errs) > 0 {
		err = errors.Join(errs...)
	}

	a.logger.Info("session reconciliation complete", slog.Int("opened", opened), slog.Int("closed", closed))
	return opened, closed, err
}

// StopAll requests a graceful stop of every open session, e.g. on daemon
// shutdown. It does not wait for the stops to complete; call Close after
// a bounded drain period.
func (a *Aggregator) StopAll() {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, entry := range a.sessions {
		entry.session.Stop()
	}
	a.logger.Info("all sessions signaled to stop", slog.Int("count", len(a.sessions)))
}

// Drain signals every open session to stop and waits, one goroutine per
// session via errgroup, for each to actually reach its Done() channel or
// for ctx to expire -- whichever comes first. Sessions still running when
// ctx expires are left for a subsequent Close to cancel forcefully.
func (a *Aggregator) Drain(ctx context.Context) error {
	a.StopAll()

	a.mu.RLock()
	entries := make([]*sessionEntry, 0, len(a.sessions))
	for _, entry := range a.sessions {
		entries = append(entries, entry)
	}
	a.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			select {
			case <-entry.session.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// Close forcefully cancels every remaining session's context and clears
// the map. Call after StopAll and a bounded drain, or directly on an
// unrecoverable error path.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, entry := range a.sessions {
		entry.cancel()
	}
	a.sessions = make(map[ranging.DeviceId]*sessionEntry)
	a.logger.Info("aggregator closed")
}

// post queues ev on the raw notification channel without blocking the
// caller's goroutine (a session's own run loop).
func (a *Aggregator) post(ev Event) {
	select {
	case a.rawNotifyCh <- ev:
	default:
		a.logger.Warn("raw notification channel full, dropping event",
			slog.String("peer", ev.Peer.String()),
			slog.String("kind", ev.Kind.String()),
		)
	}
}

// runDispatch forwards raw events to the public channel, logged and
// dropped if the consumer falls behind.
func (a *Aggregator) runDispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.rawNotifyCh:
			select {
			case a.publicNotifyCh <- ev:
			default:
				a.logger.Warn("public notification channel full, dropping event",
					slog.String("peer", ev.Peer.String()),
					slog.String("kind", ev.Kind.String()),
				)
			}
		}
	}
}
