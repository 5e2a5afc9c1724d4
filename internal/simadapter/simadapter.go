// Package simadapter is a software reference ranging.RangingAdapter, in the
// same spirit as transport.TCPHandle being a reference transport.Sender: no
// radio hardware is modeled (spec.md explicitly leaves UWB/BLE-CS/WiFi-RTT/
// BLE-RSSI drivers out of scope), but the daemon still needs something
// concrete to start/stop and emit RangingData on the negotiated interval so
// the rest of the pipeline -- selector, negotiator, aggregator, gate,
// fusion -- can be exercised end to end without real silicon.
package simadapter

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-ranging/goranging/internal/ranging"
)

// Adapter emits a synthetic RangingData record on every IntervalMs tick.
// Distance walks randomly around an initial value seeded from the peer's
// DeviceId so repeated runs against the same peer produce a stable-ish
// trajectory; azimuth is populated for UWB and CS only, and elevation is
// never populated (spec 4.F, spec 6.1).
type Adapter struct {
	ranging.BaseAdapter

	mu        sync.Mutex
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
}

// New implements the factory signature negotiator/aggregator expect:
// func(ranging.AdapterConfig) (ranging.RangingAdapter, error).
func New(_ ranging.AdapterConfig) (ranging.RangingAdapter, error) {
	return &Adapter{}, nil
}

// Start begins emitting synthetic measurements. Never blocks; OnStarted
// fires once the background goroutine is launched.
func (a *Adapter) Start(cfg ranging.AdapterConfig, callbacks ranging.AdapterCallbacks) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ranging.ErrAdapterAlreadyStarted
	}
	a.stopCh = make(chan struct{})
	a.stoppedCh = make(chan struct{})
	a.running = true
	a.mu.Unlock()

	go a.run(cfg, callbacks)

	if callbacks.OnStarted != nil {
		callbacks.OnStarted()
	}
	return nil
}

// Stop halts the emission goroutine. Calling Stop twice is a warn-and-noop
// at the caller's discretion; here it simply reports
// ErrAdapterAlreadyStopped (spec 4.F).
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ranging.ErrAdapterAlreadyStopped
	}
	a.running = false
	close(a.stopCh)
	stopped := a.stoppedCh
	a.mu.Unlock()

	<-stopped
	return nil
}

func (a *Adapter) run(cfg ranging.AdapterConfig, callbacks ranging.AdapterCallbacks) {
	defer close(a.stoppedCh)

	intervalMs := cfg.IntervalMs
	if intervalMs == 0 {
		intervalMs = 1000
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	seed := seedFromPeer(cfg.Peer)
	rng := rand.New(rand.NewPCG(seed, uint64(cfg.Technology)))
	distance := 1.0 + rng.Float64()*4.0

	for {
		select {
		case <-a.stopCh:
			if callbacks.OnStopped != nil {
				callbacks.OnStopped()
			}
			if callbacks.OnClosed != nil {
				callbacks.OnClosed(ranging.ReasonRequested)
			}
			return
		case <-ticker.C:
			distance += (rng.Float64() - 0.5) * 0.2
			if distance < 0 {
				distance = 0
			}
			if callbacks.OnRangingData != nil {
				callbacks.OnRangingData(sample(cfg, distance, rng))
			}
		}
	}
}

func sample(cfg ranging.AdapterConfig, distance float64, rng *rand.Rand) ranging.RangingData {
	data := ranging.RangingData{
		Peer:       cfg.Peer,
		Technology: cfg.Technology,
		Distance: &ranging.Measurement{
			Value:      distance,
			Error:      0.05,
			Confidence: 0.9,
		},
		TimestampMs: time.Now().UnixMilli(),
	}

	if cfg.Technology == ranging.TechUWB || cfg.Technology == ranging.TechCS {
		data.Azimuth = &ranging.Measurement{
			Value:      rng.Float64()*360 - 180,
			Error:      5,
			Confidence: 0.7,
		}
	}

	return data
}

func seedFromPeer(peer ranging.DeviceId) uint64 {
	var seed uint64
	for i, b := range peer {
		seed ^= uint64(b) << uint((i%8)*8)
	}
	return seed
}
