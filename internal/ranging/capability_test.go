package ranging_test

import (
	"sync"
	"testing"
	"time"

	"github.com/go-ranging/goranging/internal/ranging"
)

func TestCapabilityRegistryDefaultsToNotSupported(t *testing.T) {
	t.Parallel()

	r := ranging.NewCapabilityRegistry()
	defer r.Close()

	if got := r.Get(ranging.TechUWB); got != ranging.NotSupported {
		t.Errorf("Get(UWB) = %v, want NOT_SUPPORTED", got)
	}
	if r.IsUsable(ranging.TechUWB) {
		t.Error("IsUsable(UWB) true before any Set")
	}
}

func TestCapabilityRegistrySetAndIsUsable(t *testing.T) {
	t.Parallel()

	r := ranging.NewCapabilityRegistry()
	defer r.Close()

	r.Set(ranging.TechCS, ranging.Enabled)
	if !r.IsUsable(ranging.TechCS) {
		t.Error("IsUsable(CS) false after Set(ENABLED)")
	}

	r.Set(ranging.TechCS, ranging.DisabledUser)
	if r.IsUsable(ranging.TechCS) {
		t.Error("IsUsable(CS) true after Set(DISABLED_USER)")
	}
}

func TestCapabilityRegistryNotifiesListenersInOrder(t *testing.T) {
	t.Parallel()

	r := ranging.NewCapabilityRegistry()
	defer r.Close()

	var mu sync.Mutex
	var seen []ranging.AvailabilityState

	done := make(chan struct{})
	r.AddListener(func(tech ranging.TechnologyTag, state ranging.AvailabilityState) {
		mu.Lock()
		seen = append(seen, state)
		if len(seen) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	r.Set(ranging.TechUWB, ranging.Enabled)
	r.Set(ranging.TechUWB, ranging.DisabledSystem)
	r.Set(ranging.TechUWB, ranging.Enabled)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all notifications")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []ranging.AvailabilityState{ranging.Enabled, ranging.DisabledSystem, ranging.Enabled}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestCapabilityRegistryAddListenerDoesNotReplay(t *testing.T) {
	t.Parallel()

	r := ranging.NewCapabilityRegistry()
	defer r.Close()

	r.Set(ranging.TechUWB, ranging.Enabled)

	var called atomicBool
	r.AddListener(func(ranging.TechnologyTag, ranging.AvailabilityState) {
		called.set(true)
	})

	// Give any erroneous replay a moment to happen.
	time.Sleep(50 * time.Millisecond)
	if called.get() {
		t.Error("listener was called without a new Set after AddListener")
	}
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
