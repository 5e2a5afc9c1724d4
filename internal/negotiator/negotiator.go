// Package negotiator's actor: drives the two FSMs in fsm.go against a
// transport.Connection, marshaling and unmarshaling with codec and
// choosing concrete parameters with selector (spec 4.E).
package negotiator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ranging/goranging/internal/codec"
	"github.com/go-ranging/goranging/internal/ranging"
	"github.com/go-ranging/goranging/internal/selector"
	"github.com/go-ranging/goranging/internal/transport"
)

// ReceiveTimeout bounds every "await" step of both FSMs; expiry closes the
// negotiation with ranging.ErrOobTimeout (spec 4.E).
const ReceiveTimeout = 5 * time.Second

// Outcome is a completed initiator negotiation's result: the selector's
// decision (rate class and per-technology selections) and the technologies
// the peer reported as started.
type Outcome struct {
	RateClass  ranging.UpdateRateClass
	Selections []selector.TechSelection
	Started    ranging.TechnologyBitmap
}

// BuildParamsFunc turns a selector.Result into the RawRangingParams the
// initiator will offer the peer, keyed by technology. The caller supplies
// this because address assignment and session-key generation are policy
// the negotiator package does not own.
type BuildParamsFunc func(selector.Result) (map[ranging.TechnologyTag]ranging.RawRangingParams, error)

// InitiatorConfig bundles an initiator negotiation's inputs.
type InitiatorConfig struct {
	LocalCapabilities map[ranging.TechnologyTag]ranging.TechCapability
	Requested         ranging.TechnologyBitmap
	Constraints       ranging.OobRangingConstraints
	BuildParams       BuildParamsFunc
	// StartNow selects, from the final selection, which technologies to
	// ask the peer to start immediately (a subset; empty means "none yet").
	StartNow func(selector.Result) ranging.TechnologyBitmap
}

// RunInitiator drives the initiator-role FSM end to end: capability
// request/response, selector.Select, configuration set/response, and
// (if StartNow yields a non-empty bitmap) start/response. It returns once
// the negotiation reaches INIT_RUNNING or fails.
func RunInitiator(ctx context.Context, conn *transport.Connection, cfg InitiatorConfig) (Outcome, error) {
	state := InitIdle
	result := ApplyInitiatorEvent(state, EventBegin)
	state = result.NewState

	if err := send(conn, codec.MarshalCapabilityRequest, codec.CapabilityRequest{Requested: cfg.Requested}); err != nil {
		return Outcome{}, fmt.Errorf("run initiator: send capability request: %w", err)
	}

	capBody, err := awaitMessage(ctx, conn, codec.MessageCapabilityResponse)
	if err != nil {
		return Outcome{}, negotiationError(err)
	}
	capResp := capBody.(codec.CapabilityResponse)

	peerCaps := make(map[ranging.TechnologyTag]ranging.TechCapability, len(capResp.Capabilities))
	for _, c := range capResp.Capabilities {
		peerCaps[c.Technology] = c
	}

	result = ApplyInitiatorEvent(state, EventCapabilityResponseReceived)
	state = result.NewState

	selection, err := selector.Select(cfg.LocalCapabilities, peerCaps, capResp.PriorityOrder, cfg.Constraints)
	if err != nil {
		return Outcome{}, fmt.Errorf("run initiator: %w", ranging.ErrNoCompatibleCapabilities)
	}

	params, err := cfg.BuildParams(selection)
	if err != nil {
		return Outcome{}, fmt.Errorf("run initiator: build params: %w", err)
	}

	techsSet := techSetBitmap(selection.Selections)
	startNow := ranging.TechnologyBitmap(0)
	if cfg.StartNow != nil {
		startNow = cfg.StartNow(selection)
	}

	if err := send(conn, codec.MarshalSetConfiguration, codec.SetConfiguration{
		TechsSet:         techsSet,
		StartImmediately: startNow,
		Params:           params,
	}); err != nil {
		return Outcome{}, fmt.Errorf("run initiator: send set configuration: %w", err)
	}

	setBody, err := awaitMessage(ctx, conn, codec.MessageSetConfigurationResponse)
	if err != nil {
		return Outcome{}, negotiationError(err)
	}
	setResp := setBody.(codec.SetConfigurationResponse)
	if setResp.Successful == 0 {
		return Outcome{}, fmt.Errorf("run initiator: %w", ranging.ErrNoCompatibleCapabilities)
	}

	result = ApplyInitiatorEvent(state, EventSetConfigResponseReceived)
	state = result.NewState

	started := ranging.TechnologyBitmap(0)
	if startNow != 0 {
		if err := send(conn, codec.MarshalStartRanging, codec.StartRanging{TechsToStart: startNow}); err != nil {
			return Outcome{}, fmt.Errorf("run initiator: send start ranging: %w", err)
		}
		startBody, err := awaitMessage(ctx, conn, codec.MessageStartRangingResponse)
		if err != nil {
			return Outcome{}, negotiationError(err)
		}
		started = startBody.(codec.StartRangingResponse).Successful
	}

	_ = ApplyInitiatorEvent(state, EventStartResponseReceived)

	return Outcome{RateClass: selection.RateClass, Selections: selection.Selections, Started: started}, nil
}

// StopInitiator sends a stop request for techsToStop and awaits the peer's
// response (spec 4.E, INIT_RUNNING -> AWAIT_STOP_RSP -> STOPPED).
func StopInitiator(ctx context.Context, conn *transport.Connection, techsToStop ranging.TechnologyBitmap) error {
	if err := send(conn, codec.MarshalStopRanging, codec.StopRanging{TechsToStop: techsToStop}); err != nil {
		return fmt.Errorf("stop initiator: %w", err)
	}
	_, err := awaitMessage(ctx, conn, codec.MessageStopRangingResponse)
	if err != nil {
		return negotiationError(err)
	}
	return nil
}

// ValidateConfigFunc re-checks a received SetConfiguration against the
// responder's own capabilities (the responder's local re-run of selector
// step 3) and returns which technologies it accepts.
type ValidateConfigFunc func(codec.SetConfiguration) ranging.TechnologyBitmap

// StartHandlerFunc is invoked when the initiator asks the responder to
// start ranging on a set of technologies; it returns which actually
// started.
type StartHandlerFunc func(ranging.TechnologyBitmap) ranging.TechnologyBitmap

// StopHandlerFunc is invoked when the initiator asks the responder to stop
// ranging on a set of technologies; it returns which actually stopped.
type StopHandlerFunc func(ranging.TechnologyBitmap) ranging.TechnologyBitmap

// ResponderConfig bundles a responder negotiation's inputs.
type ResponderConfig struct {
	Supported     ranging.TechnologyBitmap
	PriorityOrder ranging.TechnologyBitmap
	Capabilities  []ranging.TechCapability
	ValidateConfig ValidateConfigFunc
	OnStart        StartHandlerFunc
	OnStop         StopHandlerFunc
}

// RunResponder drives the responder-role FSM for one negotiation: it waits
// for the initiator's capability request, then answers set-configuration,
// start, and stop requests. It returns nil after answering a stop request,
// and an error when the connection closes, when no message arrives within
// ReceiveTimeout (in any state, including after start), or when a protocol
// error occurs.
func RunResponder(ctx context.Context, conn *transport.Connection, cfg ResponderConfig) error {
	state := RespIdle

	reqBody, err := awaitMessage(ctx, conn, codec.MessageCapabilityRequest)
	if err != nil {
		return negotiationError(err)
	}
	req := reqBody.(codec.CapabilityRequest)

	offered := make([]ranging.TechCapability, 0, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		if req.Requested == 0 || req.Requested.Has(c.Technology) {
			offered = append(offered, c)
		}
	}

	if err := send(conn, codec.MarshalCapabilityResponse, codec.CapabilityResponse{
		Supported:     cfg.Supported,
		PriorityOrder: cfg.PriorityOrder,
		Capabilities:  offered,
	}); err != nil {
		return fmt.Errorf("run responder: send capability response: %w", err)
	}

	result := ApplyResponderEvent(state, EventCapabilityRequestReceived)
	state = result.NewState

	for {
		body, err := awaitAny(ctx, conn)
		if err != nil {
			return negotiationError(err)
		}

		switch m := body.(type) {
		case codec.SetConfiguration:
			if state != RespAwaitSetConfig {
				return fmt.Errorf("run responder: %w", ranging.ErrOobProtocolError)
			}
			successful := cfg.ValidateConfig(m)
			if err := send(conn, codec.MarshalSetConfigurationResponse, codec.SetConfigurationResponse{Successful: successful}); err != nil {
				return fmt.Errorf("run responder: send set configuration response: %w", err)
			}
			result = ApplyResponderEvent(state, EventSetConfigReceived)
			state = result.NewState

		case codec.StartRanging:
			if state != RespAwaitStart {
				return fmt.Errorf("run responder: %w", ranging.ErrOobProtocolError)
			}
			started := cfg.OnStart(m.TechsToStart)
			if err := send(conn, codec.MarshalStartRangingResponse, codec.StartRangingResponse{Successful: started}); err != nil {
				return fmt.Errorf("run responder: send start ranging response: %w", err)
			}
			result = ApplyResponderEvent(state, EventStartReceived)
			state = result.NewState

		case codec.StopRanging:
			if state != RespRunning {
				return fmt.Errorf("run responder: %w", ranging.ErrOobProtocolError)
			}
			stopped := cfg.OnStop(m.TechsToStop)
			if err := send(conn, codec.MarshalStopRangingResponse, codec.StopRangingResponse{Successful: stopped}); err != nil {
				return fmt.Errorf("run responder: send stop ranging response: %w", err)
			}
			result = ApplyResponderEvent(state, EventStopReceived)
			state = result.NewState
			return nil

		default:
			return fmt.Errorf("run responder: %w", ranging.ErrOobProtocolError)
		}
	}
}

func techSetBitmap(selections []selector.TechSelection) ranging.TechnologyBitmap {
	var b ranging.TechnologyBitmap
	for _, s := range selections {
		b = b.Set(s.Technology)
	}
	return b
}

func send[T any](conn *transport.Connection, marshal func(T) ([]byte, error), msg T) error {
	data, err := marshal(msg)
	if err != nil {
		return err
	}
	return <-conn.Send(data)
}

// awaitMessage waits for the next message and requires it to be of
// wantType, mapping a timeout or a wrong type to the appropriate
// ranging.RangingError.
func awaitMessage(ctx context.Context, conn *transport.Connection, wantType codec.MessageType) (any, error) {
	hdr, body, err := awaitAnyHeader(ctx, conn)
	if err != nil {
		return nil, err
	}
	if hdr.MessageType != wantType {
		return nil, fmt.Errorf("await message: got %s, want %s: %w", hdr.MessageType, wantType, ranging.ErrOobProtocolError)
	}
	return body, nil
}

// awaitAny waits for the next message of any type, for the responder's
// steady-state loop.
func awaitAny(ctx context.Context, conn *transport.Connection) (any, error) {
	_, body, err := awaitAnyHeader(ctx, conn)
	return body, err
}

func awaitAnyHeader(ctx context.Context, conn *transport.Connection) (codec.Header, any, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, ReceiveTimeout)
	defer cancel()

	select {
	case res := <-conn.Receive():
		if res.Err != nil {
			return codec.Header{}, nil, fmt.Errorf("await: %w", ranging.ErrOobProtocolError)
		}
		hdr, body, err := codec.Decode(res.Data)
		if err != nil {
			return codec.Header{}, nil, fmt.Errorf("await: decode: %w", ranging.ErrOobProtocolError)
		}
		return hdr, body, nil
	case <-timeoutCtx.Done():
		return codec.Header{}, nil, fmt.Errorf("await: %w", ranging.ErrOobTimeout)
	}
}

// negotiationError passes through an already-mapped ranging.RangingError;
// anything else is wrapped as a protocol error.
func negotiationError(err error) error {
	var rangingErr ranging.RangingError
	if errors.As(err, &rangingErr) {
		return err
	}
	return fmt.Errorf("negotiation: %v: %w", err, ranging.ErrOobProtocolError)
}
