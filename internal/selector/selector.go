package selector

import (
	"fmt"
	"math/bits"

	"github.com/go-ranging/goranging/internal/ranging"
)

// TechSelection is one technology's concrete, selector-chosen parameters
// (spec 4.D step 3). Fields outside a technology's relevance are left
// zero.
type TechSelection struct {
	Technology ranging.TechnologyTag
	IntervalMs uint32

	// UWB.
	Channel       uint8
	PreambleIndex uint8
	ConfigID      uint8

	// CS.
	SecurityLevel ranging.SecurityLevel

	// RTT.
	PeriodicRanging bool
}

// Result is the selector's output for one peer (spec 4.D): the chosen
// update-rate class and the concrete per-technology selections, in stable
// bit-index order.
type Result struct {
	RateClass  ranging.UpdateRateClass
	Selections []TechSelection
}

// Select runs the five-step config selection algorithm for one peer
// (spec 4.D). local and peer are each the full TechCapability set for
// that side, keyed by technology; peerPriority is the peer's advertised
// priority order, used only by AUTO mode. Select does not mutate any of
// its inputs and is deterministic given its inputs.
func Select(
	local, peer map[ranging.TechnologyTag]ranging.TechCapability,
	peerPriority ranging.TechnologyBitmap,
	constraints ranging.OobRangingConstraints,
) (Result, error) {
	if err := constraints.Validate(); err != nil {
		return Result{}, err
	}

	candidates := intersectTechs(local, peer, constraints.AllowedTechnologies)
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("select: %w", ranging.ErrNoCompatibleCapabilities)
	}

	rateClass, err := ranging.ClassForWindow(candidates, constraints.FastestIntervalMs, constraints.SlowestIntervalMs)
	if err != nil {
		return Result{}, fmt.Errorf("select: %w", err)
	}

	narrowed := narrow(candidates, local, peer, constraints, rateClass)
	if len(narrowed) == 0 {
		return Result{}, fmt.Errorf("select: %w", ranging.ErrNoCompatibleCapabilities)
	}

	final := applyModePolicy(narrowed, constraints.Mode, peerPriority)
	if len(final) == 0 {
		return Result{}, fmt.Errorf("select: %w", ranging.ErrNoCompatibleCapabilities)
	}

	return Result{RateClass: rateClass, Selections: final}, nil
}

// intersectTechs returns the technologies present in local, present in
// peer, and allowed by the constraint, in bit-index order.
func intersectTechs(local, peer map[ranging.TechnologyTag]ranging.TechCapability, allowed ranging.TechnologyBitmap) []ranging.TechnologyTag {
	var out []ranging.TechnologyTag
	for _, tech := range allowed.Technologies() {
		if _, ok := local[tech]; !ok {
			continue
		}
		if _, ok := peer[tech]; !ok {
			continue
		}
		out = append(out, tech)
	}
	return out
}

// narrow applies step 3's per-technology narrowing to each candidate,
// dropping any technology that cannot be concretely satisfied.
func narrow(
	candidates []ranging.TechnologyTag,
	local, peer map[ranging.TechnologyTag]ranging.TechCapability,
	constraints ranging.OobRangingConstraints,
	rateClass ranging.UpdateRateClass,
) []TechSelection {
	var out []TechSelection
	for _, tech := range candidates {
		l, p := local[tech], peer[tech]
		interval := ranging.IntervalMs(rateClass, tech)

		switch tech {
		case ranging.TechUWB:
			sel, ok := narrowUWB(l, p, interval)
			if ok {
				out = append(out, sel)
			}
		case ranging.TechCS:
			sel, ok := narrowCS(l, p, constraints.Security, interval)
			if ok {
				out = append(out, sel)
			}
		case ranging.TechRTT:
			out = append(out, TechSelection{
				Technology:      ranging.TechRTT,
				IntervalMs:      interval,
				PeriodicRanging: l.SupportsPeriodic && p.SupportsPeriodic,
			})
		case ranging.TechRSSI:
			out = append(out, TechSelection{Technology: ranging.TechRSSI, IntervalMs: interval})
		}
	}
	return out
}

// narrowUWB intersects channel, preamble, and config-ID bitmaps, picking
// the numerically smallest common bit in each -- a deterministic tiebreak
// (spec 4.D step 3).
func narrowUWB(local, peer ranging.TechCapability, interval uint32) (TechSelection, bool) {
	channel, ok := smallestCommonBit(local.SupportedChannels, peer.SupportedChannels)
	if !ok {
		return TechSelection{}, false
	}
	preamble, ok := smallestCommonBit(local.SupportedPreambles, peer.SupportedPreambles)
	if !ok {
		return TechSelection{}, false
	}
	configID, ok := smallestCommonBit(local.SupportedConfigIDs, peer.SupportedConfigIDs)
	if !ok {
		return TechSelection{}, false
	}
	return TechSelection{
		Technology:    ranging.TechUWB,
		IntervalMs:    interval,
		Channel:       uint8(channel),
		PreambleIndex: uint8(preamble),
		ConfigID:      uint8(configID),
	}, true
}

// narrowCS picks the highest supported security level common to both
// sides that meets required: SECURE needs level four, BASIC accepts one
// or above (spec 4.D step 3).
func narrowCS(local, peer ranging.TechCapability, required ranging.SecurityRequirement, interval uint32) (TechSelection, bool) {
	common := local.SupportedSecurityLevels & peer.SupportedSecurityLevels
	minLevel := ranging.SecurityLevelOne
	if required == ranging.SecuritySecure {
		minLevel = ranging.SecurityLevelFour
	}

	var best ranging.SecurityLevel
	for level := ranging.SecurityLevelFour; level >= minLevel; level-- {
		if common&(1<<(level-1)) != 0 {
			best = level
			break
		}
	}
	if best == 0 {
		return TechSelection{}, false
	}
	return TechSelection{Technology: ranging.TechCS, IntervalMs: interval, SecurityLevel: best}, true
}

// smallestCommonBit returns the lowest set bit present in both a and b.
func smallestCommonBit(a, b uint32) (int, bool) {
	common := a & b
	if common == 0 {
		return 0, false
	}
	return bits.TrailingZeros32(common), true
}

// applyModePolicy applies step 4's mode policy to narrowed.
func applyModePolicy(narrowed []TechSelection, mode ranging.RangingMode, peerPriority ranging.TechnologyBitmap) []TechSelection {
	hasUWB := false
	for _, s := range narrowed {
		if s.Technology == ranging.TechUWB {
			hasUWB = true
			break
		}
	}

	switch mode {
	case ranging.ModeHighAccuracyPreferred:
		return filterTech(narrowed, ranging.TechUWB)
	case ranging.ModeHighAccuracy:
		if hasUWB {
			return filterTech(narrowed, ranging.TechUWB)
		}
		return narrowed
	case ranging.ModeFused:
		return narrowed
	case ranging.ModeAuto:
		for _, tech := range peerPriority.Technologies() {
			if sel := filterTech(narrowed, tech); len(sel) == 1 {
				return sel
			}
		}
		return nil
	default:
		return narrowed
	}
}

func filterTech(selections []TechSelection, tech ranging.TechnologyTag) []TechSelection {
	var out []TechSelection
	for _, s := range selections {
		if s.Technology == tech {
			out = append(out, s)
		}
	}
	return out
}
