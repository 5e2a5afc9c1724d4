package selector_test

import (
	"errors"
	"testing"

	"github.com/go-ranging/goranging/internal/ranging"
	"github.com/go-ranging/goranging/internal/selector"
)

func baseConstraints() ranging.OobRangingConstraints {
	return ranging.OobRangingConstraints{
		AllowedTechnologies: ranging.TechnologyBitmap(0).Set(ranging.TechUWB).Set(ranging.TechCS),
		FastestIntervalMs:   0,
		SlowestIntervalMs:   10000,
	}
}

func uwbCap() ranging.TechCapability {
	return ranging.TechCapability{
		Technology:         ranging.TechUWB,
		SupportedChannels:  0b1010,
		SupportedPreambles: 0b0110,
		SupportedConfigIDs: 0b0011,
	}
}

func csCap(levels uint8) ranging.TechCapability {
	return ranging.TechCapability{Technology: ranging.TechCS, SupportedSecurityLevels: levels}
}

func TestSelectUWBNarrowsToSmallestCommonBits(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechUWB: uwbCap()}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechUWB: uwbCap()}

	constraints := ranging.OobRangingConstraints{
		AllowedTechnologies: ranging.TechnologyBitmap(0).Set(ranging.TechUWB),
		SlowestIntervalMs:   10000,
	}

	result, err := selector.Select(local, peer, ranging.TechnologyBitmap(0).Set(ranging.TechUWB), constraints)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(result.Selections) != 1 {
		t.Fatalf("Selections = %v, want exactly one", result.Selections)
	}

	sel := result.Selections[0]
	// Channel bitmap 0b1010 has bits 1,3 set -> smallest is 1.
	if sel.Channel != 1 {
		t.Errorf("Channel = %d, want 1", sel.Channel)
	}
	// Preamble bitmap 0b0110 has bits 1,2 set -> smallest is 1.
	if sel.PreambleIndex != 1 {
		t.Errorf("PreambleIndex = %d, want 1", sel.PreambleIndex)
	}
	// ConfigID bitmap 0b0011 has bits 0,1 set -> smallest is 0.
	if sel.ConfigID != 0 {
		t.Errorf("ConfigID = %d, want 0", sel.ConfigID)
	}
}

func TestSelectCSPicksHighestCommonSecurityLevel(t *testing.T) {
	t.Parallel()

	// Level bit (level-1): level 2 = bit 1, level 3 = bit 2.
	local := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechCS: csCap(0b0110)}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechCS: csCap(0b0010)}

	constraints := ranging.OobRangingConstraints{
		AllowedTechnologies: ranging.TechnologyBitmap(0).Set(ranging.TechCS),
		Security:            ranging.SecurityBasic,
		SlowestIntervalMs:   10000,
	}

	result, err := selector.Select(local, peer, ranging.TechnologyBitmap(0).Set(ranging.TechCS), constraints)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(result.Selections) != 1 || result.Selections[0].SecurityLevel != ranging.SecurityLevelTwo {
		t.Errorf("Selections = %v, want single CS selection at level two", result.Selections)
	}
}

func TestSelectCSFailsSecureRequirementWithoutLevelFour(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechCS: csCap(0b0010)}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechCS: csCap(0b0010)}

	constraints := ranging.OobRangingConstraints{
		AllowedTechnologies: ranging.TechnologyBitmap(0).Set(ranging.TechCS),
		Security:            ranging.SecuritySecure,
		SlowestIntervalMs:   10000,
	}

	_, err := selector.Select(local, peer, 0, constraints)
	if !errors.Is(err, ranging.ErrNoCompatibleCapabilities) {
		t.Errorf("Select() error = %v, want ErrNoCompatibleCapabilities", err)
	}
}

func TestSelectModeHighAccuracyPreferredRequiresUWB(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}

	constraints := baseConstraints()
	constraints.Mode = ranging.ModeHighAccuracyPreferred

	result, err := selector.Select(local, peer, 0, constraints)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(result.Selections) != 1 || result.Selections[0].Technology != ranging.TechUWB {
		t.Errorf("Selections = %v, want only UWB", result.Selections)
	}
}

func TestSelectModeFusedKeepsEveryCandidate(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}

	constraints := baseConstraints()
	constraints.Mode = ranging.ModeFused

	result, err := selector.Select(local, peer, 0, constraints)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(result.Selections) != 2 {
		t.Errorf("Selections = %v, want both UWB and CS", result.Selections)
	}
}

func TestSelectModeAutoPicksPeerPriorityWhenUnique(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{
		ranging.TechUWB: uwbCap(),
		ranging.TechCS:  csCap(0b0010),
	}

	constraints := baseConstraints()
	constraints.Mode = ranging.ModeAuto

	priority := ranging.TechnologyBitmap(0).Set(ranging.TechCS)

	result, err := selector.Select(local, peer, priority, constraints)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(result.Selections) != 1 || result.Selections[0].Technology != ranging.TechCS {
		t.Errorf("Selections = %v, want only CS (peer priority)", result.Selections)
	}
}

func TestSelectNoCandidatesErrors(t *testing.T) {
	t.Parallel()

	local := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechUWB: uwbCap()}
	peer := map[ranging.TechnologyTag]ranging.TechCapability{ranging.TechCS: csCap(0b0010)}

	_, err := selector.Select(local, peer, 0, baseConstraints())
	if !errors.Is(err, ranging.ErrNoCompatibleCapabilities) {
		t.Errorf("Select() error = %v, want ErrNoCompatibleCapabilities", err)
	}
}

func TestSelectInvalidConstraintWindow(t *testing.T) {
	t.Parallel()

	constraints := baseConstraints()
	constraints.FastestIntervalMs = 5000
	constraints.SlowestIntervalMs = 100

	_, err := selector.Select(nil, nil, 0, constraints)
	if !errors.Is(err, ranging.ErrInvalidConstraintRange) {
		t.Errorf("Select() error = %v, want ErrInvalidConstraintRange", err)
	}
}
