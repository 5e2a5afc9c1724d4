package rangingmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goranging"
	subsystem = "ranging"
)

// Label names for ranging metrics.
const (
	labelPeer       = "peer"
	labelTechnology = "technology"
	labelReason     = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus ranging metrics
// -------------------------------------------------------------------------

// Collector holds all ranging Prometheus metrics.
//
//   - Sessions tracks currently open peer sessions.
//   - Measurements counts accepted ranging.RangingData records per peer/
//     technology.
//   - SessionsClosed counts closed sessions by reason, for alerting on
//     unexpected close patterns (e.g. a spike in SYSTEM_POLICY closes).
//   - NegotiationFailures counts OOB negotiation failures per reason.
//   - SelectorRejections counts config-selector failures (no compatible
//     capability, no update-rate class fits).
type Collector struct {
	Sessions            *prometheus.GaugeVec
	Measurements        *prometheus.CounterVec
	SessionsClosed      *prometheus.CounterVec
	NegotiationFailures *prometheus.CounterVec
	SelectorRejections  prometheus.Counter
}

// NewCollector creates a Collector with all ranging metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "goranging_ranging_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.Measurements,
		c.SessionsClosed,
		c.NegotiationFailures,
		c.SelectorRejections,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	peerLabels := []string{labelPeer}
	measurementLabels := []string{labelPeer, labelTechnology}
	reasonLabels := []string{labelPeer, labelReason}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently open peer ranging sessions.",
		}, peerLabels),

		Measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "measurements_total",
			Help:      "Total ranging measurements emitted per peer and technology.",
		}, measurementLabels),

		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_closed_total",
			Help:      "Total peer sessions closed, labeled by ClosedReason.",
		}, reasonLabels),

		NegotiationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "negotiation_failures_total",
			Help:      "Total OOB negotiation failures, labeled by the RangingError reported.",
		}, reasonLabels),

		SelectorRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "selector_rejections_total",
			Help:      "Total config-selector runs that found no compatible selection.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the active sessions gauge for the given peer.
// Called when the aggregator opens a session.
func (c *Collector) RegisterSession(peer string) {
	c.Sessions.WithLabelValues(peer).Inc()
}

// UnregisterSession decrements the active sessions gauge for the given
// peer. Called when the aggregator's session-closed event fires.
func (c *Collector) UnregisterSession(peer string) {
	c.Sessions.WithLabelValues(peer).Dec()
}

// RecordSessionClosed increments the closed-sessions counter with the
// ClosedReason label. Used for alerting on abnormal close patterns.
func (c *Collector) RecordSessionClosed(peer, reason string) {
	c.SessionsClosed.WithLabelValues(peer, reason).Inc()
}

// -------------------------------------------------------------------------
// Measurements
// -------------------------------------------------------------------------

// IncMeasurements increments the measurements counter for the given peer
// and technology. Called on each accepted RangingData record.
func (c *Collector) IncMeasurements(peer, technology string) {
	c.Measurements.WithLabelValues(peer, technology).Inc()
}

// -------------------------------------------------------------------------
// Negotiation
// -------------------------------------------------------------------------

// IncNegotiationFailures increments the negotiation-failures counter for
// the given peer and RangingError.
func (c *Collector) IncNegotiationFailures(peer, reason string) {
	c.NegotiationFailures.WithLabelValues(peer, reason).Inc()
}

// IncSelectorRejections increments the selector-rejections counter, the
// count of selector.Select failures (ranging.ErrNoCompatibleCapabilities or
// ranging.ErrNoUpdateRateClassFits). cmd/rangingd does not call it.
func (c *Collector) IncSelectorRejections() {
	c.SelectorRejections.Inc()
}
