package ranging_test

import (
	"testing"

	"github.com/go-ranging/goranging/internal/ranging"
)

func TestDataNotificationGateDisable(t *testing.T) {
	t.Parallel()

	g := ranging.NewDataNotificationGate(
		ranging.DataNotificationConfig{Type: ranging.NotificationDisable},
		ranging.DataNotificationConfig{},
	)
	if g.Accept(1.5) {
		t.Error("DISABLE gate accepted a measurement")
	}
}

func TestDataNotificationGateEnable(t *testing.T) {
	t.Parallel()

	g := ranging.NewDataNotificationGate(
		ranging.DataNotificationConfig{Type: ranging.NotificationEnable},
		ranging.DataNotificationConfig{},
	)
	if !g.Accept(1.5) {
		t.Error("ENABLE gate rejected a measurement")
	}
}

func TestDataNotificationGateProximityLevel(t *testing.T) {
	t.Parallel()

	g := ranging.NewDataNotificationGate(
		ranging.DataNotificationConfig{Type: ranging.NotificationProximityLevel, ProximityNear: 1.0, ProximityFar: 2.0},
		ranging.DataNotificationConfig{},
	)

	if g.Accept(0.5) {
		t.Error("accepted distance below window")
	}
	if !g.Accept(1.5) {
		t.Error("rejected distance inside window")
	}
	if g.Accept(2.5) {
		t.Error("accepted distance above window")
	}
}

func TestDataNotificationGateProximityEdge(t *testing.T) {
	t.Parallel()

	g := ranging.NewDataNotificationGate(
		ranging.DataNotificationConfig{Type: ranging.NotificationProximityEdge, ProximityNear: 1.0, ProximityFar: 2.0},
		ranging.DataNotificationConfig{},
	)

	// Starts outside (near=false, far=false). Entering the window crosses
	// the near boundary, so the first in-window reading must be accepted.
	if !g.Accept(1.5) {
		t.Error("expected boundary crossing into window to be accepted")
	}
	// A second reading still inside the window crosses no boundary.
	if g.Accept(1.6) {
		t.Error("expected no crossing for a second reading within the same window")
	}
	// Leaving out the far side crosses the far boundary.
	if !g.Accept(2.5) {
		t.Error("expected boundary crossing out of window to be accepted")
	}
}

func TestDataNotificationGateBackgroundSwap(t *testing.T) {
	t.Parallel()

	g := ranging.NewDataNotificationGate(
		ranging.DataNotificationConfig{Type: ranging.NotificationEnable},
		ranging.DataNotificationConfig{Type: ranging.NotificationDisable},
	)

	if !g.Accept(1.0) {
		t.Fatal("foreground ENABLE should accept")
	}

	g.AppMovedToBackground()
	if g.Accept(1.0) {
		t.Error("background DISABLE should reject after swap")
	}

	g.AppMovedToForeground()
	if !g.Accept(1.0) {
		t.Error("foreground ENABLE should accept again after swap back")
	}
}
