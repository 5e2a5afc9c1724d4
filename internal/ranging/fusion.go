package ranging

// FilterEngine is the opaque sensor-fusion numeric core (spec 6.3). The
// core only depends on this contract; the actual filtering math is an
// external collaborator.
type FilterEngine interface {
	// Add feeds one tick's sparse spherical sample. Any of the three
	// fields may be absent (nil).
	Add(azimuth, elevation, distance *Measurement)

	// Compute returns the engine's corrected estimate for the tick, or nil
	// if the engine has no correction to offer this tick ("pass through").
	Compute() *RangingData

	Close()
}

// FusionAdapter wraps an opaque FilterEngine with the peer session's
// RangingData shape (spec 4.J): it feeds adapter measurements in and
// emits whatever the engine decides, defaulting confidence=0 and error=0
// for engine-supplied fields per spec 6.3.
type FusionAdapter struct {
	engine FilterEngine
	peer   DeviceId
}

// NewFusionAdapter wraps engine for peer.
func NewFusionAdapter(peer DeviceId, engine FilterEngine) *FusionAdapter {
	return &FusionAdapter{engine: engine, peer: peer}
}

// Feed submits one raw measurement and returns the engine's fused output
// for this tick, if any.
func (f *FusionAdapter) Feed(data RangingData) *RangingData {
	f.engine.Add(data.Azimuth, data.Elevation, data.Distance)
	out := f.engine.Compute()
	if out == nil {
		return nil
	}
	out.Peer = f.peer
	out.TimestampMs = data.TimestampMs
	return out
}

// Close releases the underlying engine.
func (f *FusionAdapter) Close() {
	f.engine.Close()
}

// PreferentialFuser implements the "optional" sensor-fusion decision (spec
// 4.K): prefer one technology's measurement when present in a tick,
// otherwise fall back to the best of the others by Measurement.Confidence.
type PreferentialFuser struct {
	preferred TechnologyTag
}

// NewPreferentialFuser creates a fuser that prefers readings from
// preferred when present in the same tick's candidate set.
func NewPreferentialFuser(preferred TechnologyTag) *PreferentialFuser {
	return &PreferentialFuser{preferred: preferred}
}

// Choose picks one RangingData out of candidates observed in the same
// tick: the preferred technology's reading if present, else the candidate
// with the highest distance-measurement confidence. candidates must be
// non-empty.
func (f *PreferentialFuser) Choose(candidates []RangingData) RangingData {
	for _, c := range candidates {
		if c.Technology == f.preferred {
			return c
		}
	}

	best := candidates[0]
	bestConfidence := confidenceOf(best)
	for _, c := range candidates[1:] {
		if conf := confidenceOf(c); conf > bestConfidence {
			best = c
			bestConfidence = conf
		}
	}
	return best
}

func confidenceOf(d RangingData) float64 {
	if d.Distance != nil {
		return d.Distance.Confidence
	}
	return 0
}
