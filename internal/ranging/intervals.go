// Update rate classes (spec 3).
//
// UpdateRateClass maps to concrete per-technology update intervals by a
// fixed table. The config selector (spec 4.D step 2) picks the unique
// class whose concrete interval, for every surviving technology, falls
// inside the constraint's [fastest, slowest] window.

package ranging

import "fmt"

// UpdateRateClass is a closed enum of update-rate classes (spec 3).
type UpdateRateClass uint8

const (
	RateNormal UpdateRateClass = iota
	RateInfrequent
	RateFrequent

	rateClassCount = 3
)

var rateClassNames = [rateClassCount]string{"NORMAL", "INFREQUENT", "FREQUENT"}

func (c UpdateRateClass) String() string {
	if int(c) < len(rateClassNames) {
		return rateClassNames[c]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(c))
}

// intervalTableMs[class][tech] is the concrete per-technology interval, in
// milliseconds, for class. Values follow spec 3's worked example.
var intervalTableMs = [rateClassCount][techCount]uint32{
	RateNormal:     {TechUWB: 200, TechCS: 1000, TechRTT: 1000, TechRSSI: 1000},
	RateInfrequent: {TechUWB: 600, TechCS: 3000, TechRTT: 3000, TechRSSI: 3000},
	RateFrequent:   {TechUWB: 100, TechCS: 500, TechRTT: 500, TechRSSI: 500},
}

// IntervalMs returns the concrete interval, in milliseconds, for the given
// class and technology.
func IntervalMs(class UpdateRateClass, tech TechnologyTag) uint32 {
	return intervalTableMs[class][tech]
}

// FitsWindow reports whether class's concrete interval for every
// technology in techs lies within [fastestMs, slowestMs], inclusive.
func FitsWindow(class UpdateRateClass, techs []TechnologyTag, fastestMs, slowestMs uint32) bool {
	if len(techs) == 0 {
		return false
	}
	for _, t := range techs {
		iv := IntervalMs(class, t)
		if iv < fastestMs || iv > slowestMs {
			return false
		}
	}
	return true
}

// ClassForWindow returns the UpdateRateClass whose concrete intervals fall
// within [fastestMs, slowestMs] for every technology in techs. If
// fastestMs == slowestMs (a degenerate single point), the class's interval
// must equal that point exactly for every technology. When more than one
// class fits, the tiebreak is the class's declaration order (NORMAL before
// INFREQUENT before FREQUENT) so the result is deterministic given its
// inputs (spec 4.D, spec 8 "selector determinism"). Returns
// ErrNoUpdateRateClassFits if none fits.
func ClassForWindow(techs []TechnologyTag, fastestMs, slowestMs uint32) (UpdateRateClass, error) {
	for c := UpdateRateClass(0); int(c) < rateClassCount; c++ {
		if FitsWindow(c, techs, fastestMs, slowestMs) {
			return c, nil
		}
	}
	return 0, ErrNoUpdateRateClassFits
}
