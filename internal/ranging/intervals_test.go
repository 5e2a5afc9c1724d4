package ranging_test

import (
	"errors"
	"testing"

	"github.com/go-ranging/goranging/internal/ranging"
)

func TestIntervalMs(t *testing.T) {
	t.Parallel()

	if got := ranging.IntervalMs(ranging.RateNormal, ranging.TechUWB); got != 200 {
		t.Errorf("IntervalMs(NORMAL, UWB) = %d, want 200", got)
	}
	if got := ranging.IntervalMs(ranging.RateFrequent, ranging.TechCS); got != 500 {
		t.Errorf("IntervalMs(FREQUENT, CS) = %d, want 500", got)
	}
}

func TestFitsWindow(t *testing.T) {
	t.Parallel()

	techs := []ranging.TechnologyTag{ranging.TechUWB, ranging.TechCS}

	if !ranging.FitsWindow(ranging.RateNormal, techs, 100, 1000) {
		t.Error("NORMAL class should fit [100,1000] for UWB+CS")
	}
	if ranging.FitsWindow(ranging.RateNormal, techs, 100, 300) {
		t.Error("NORMAL class should not fit [100,300] since CS needs 1000ms")
	}
	if ranging.FitsWindow(ranging.RateNormal, nil, 0, 10000) {
		t.Error("FitsWindow with no technologies should be false")
	}
}

func TestClassForWindowDeterministicTiebreak(t *testing.T) {
	t.Parallel()

	techs := []ranging.TechnologyTag{ranging.TechUWB}

	// Both NORMAL (200ms) and FREQUENT (100ms) fit a wide window; NORMAL
	// must win since it is declared first.
	class, err := ranging.ClassForWindow(techs, 0, 1000)
	if err != nil {
		t.Fatalf("ClassForWindow() error: %v", err)
	}
	if class != ranging.RateNormal {
		t.Errorf("ClassForWindow() = %v, want NORMAL (declaration-order tiebreak)", class)
	}
}

func TestClassForWindowNoneFits(t *testing.T) {
	t.Parallel()

	techs := []ranging.TechnologyTag{ranging.TechUWB}

	_, err := ranging.ClassForWindow(techs, 1, 2)
	if !errors.Is(err, ranging.ErrNoUpdateRateClassFits) {
		t.Errorf("ClassForWindow() error = %v, want ErrNoUpdateRateClassFits", err)
	}
}
