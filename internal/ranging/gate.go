package ranging

import "sync/atomic"

// DataNotificationGate is a post-measurement distance-window filter (spec
// 4.I). It holds a current and an alternate DataNotificationConfig; app
// foreground/background transitions swap which one is current.
//
// The swap is atomic: subsequent reads via the internal config pointer
// never observe a half-swapped configuration, because the foreground and
// background configs are stored once at construction and only the
// selecting pointer is swapped, not the structs themselves.
type DataNotificationGate struct {
	foreground DataNotificationConfig
	background DataNotificationConfig

	// current points at either &foreground or &background. Swapped
	// atomically by AppMovedToBackground/Foreground.
	current atomic.Pointer[DataNotificationConfig]

	// prevNear/prevFar track PROXIMITY_EDGE's previous near/far boundary
	// state independently, so a measurement is only emitted when it
	// crosses one of the two boundaries, not merely when overall window
	// membership toggles. Both default to false ("outside") before the
	// first reading.
	prevNear atomic.Bool
	prevFar  atomic.Bool
}

// NewDataNotificationGate creates a gate starting in the foreground
// config. If background.Type is the zero value and the caller did not set
// it explicitly, it defaults to DISABLE per spec 4.I.
func NewDataNotificationGate(foreground, background DataNotificationConfig) *DataNotificationGate {
	g := &DataNotificationGate{foreground: foreground, background: background}
	g.current.Store(&g.foreground)
	return g
}

// AppMovedToBackground switches the active config to the background one.
func (g *DataNotificationGate) AppMovedToBackground() {
	g.current.Store(&g.background)
}

// AppMovedToForeground switches the active config back to the foreground
// one.
func (g *DataNotificationGate) AppMovedToForeground() {
	g.current.Store(&g.foreground)
}

// Accept decides whether distance d should be surfaced to the caller,
// under whichever config is current at the moment of the call (spec 4.I).
func (g *DataNotificationGate) Accept(d float64) bool {
	cfg := g.current.Load()

	var accept bool
	switch cfg.Type {
	case NotificationDisable:
		accept = false
	case NotificationEnable:
		accept = true
	case NotificationProximityLevel:
		accept = d >= cfg.ProximityNear && d <= cfg.ProximityFar
	case NotificationProximityEdge:
		near := d >= cfg.ProximityNear
		far := d <= cfg.ProximityFar
		crossedNear := near != g.prevNear.Swap(near)
		crossedFar := far != g.prevFar.Swap(far)
		return crossedNear || crossedFar
	default:
		accept = false
	}
	return accept
}
