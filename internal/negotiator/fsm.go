// OOB negotiator FSMs (spec 4.E).
//
// Two state machines, one per role, sharing the codec and transport
// packages. Both are pure tables of (state, event) -> (state, actions), in
// the same style as internal/ranging/fsm.go's ApplyEvent: a lookup with no
// side effects, with unlisted pairs left as a no-op.

package negotiator

import "fmt"

// InitiatorState is a state of the initiator-role negotiation FSM (spec
// 4.E).
type InitiatorState uint8

const (
	InitIdle InitiatorState = iota
	InitAwaitCapabilityResponse
	InitAwaitSetConfigResponse
	InitAwaitStartResponse
	InitRunning
	InitAwaitStopResponse
	InitStopped
)

var initiatorStateNames = [...]string{
	"INIT_IDLE", "AWAIT_CAP_RSP", "AWAIT_SET_RSP", "AWAIT_START_RSP",
	"RUNNING", "AWAIT_STOP_RSP", "STOPPED",
}

func (s InitiatorState) String() string {
	if int(s) < len(initiatorStateNames) {
		return initiatorStateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// ResponderState is a state of the responder-role negotiation FSM (spec
// 4.E, "Responder mirrors").
type ResponderState uint8

const (
	RespIdle ResponderState = iota
	RespAwaitSetConfig
	RespAwaitStart
	RespRunning
	RespAwaitStop
	RespStopped
)

var responderStateNames = [...]string{
	"RESP_IDLE", "AWAIT_SET_CONFIG", "AWAIT_START", "RUNNING", "AWAIT_STOP", "STOPPED",
}

func (s ResponderState) String() string {
	if int(s) < len(responderStateNames) {
		return responderStateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// Event drives both negotiation FSMs. Not every event is meaningful to
// both roles; each role's table only lists the pairs that apply to it.
type Event uint8

const (
	EventBegin Event = iota
	EventCapabilityRequestReceived
	EventCapabilityResponseReceived
	EventSetConfigReceived
	EventSetConfigResponseReceived
	EventStartReceived
	EventStartResponseReceived
	EventStopReceived
	EventStopResponseReceived
	EventStopRequested
	EventTimeout
	EventUnexpectedMessage
)

var eventNames = [...]string{
	"Begin", "CapabilityRequestReceived", "CapabilityResponseReceived",
	"SetConfigReceived", "SetConfigResponseReceived", "StartReceived",
	"StartResponseReceived", "StopReceived", "StopResponseReceived",
	"StopRequested", "Timeout", "UnexpectedMessage",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(e))
}

// Action is a side effect the actor executes after a table lookup.
type Action uint8

const (
	ActionSendCapabilityRequest Action = iota
	ActionRunSelectorAndSendSetConfig
	ActionSendStartIfNonEmpty
	ActionArmReceiveTimeout
	ActionCancelReceiveTimeout
	ActionCloseTimeout
	ActionCloseProtocolError
	ActionSendCapabilityResponse
	ActionValidateAndSendSetConfigResponse
	ActionSendStartResponse
	ActionSendStopResponse
	ActionSendStopRequest
	ActionReportRunning
	ActionReportStopped
)

var actionNames = [...]string{
	"SendCapabilityRequest", "RunSelectorAndSendSetConfig", "SendStartIfNonEmpty",
	"ArmReceiveTimeout", "CancelReceiveTimeout", "CloseTimeout", "CloseProtocolError",
	"SendCapabilityResponse", "ValidateAndSendSetConfigResponse", "SendStartResponse",
	"SendStopResponse", "SendStopRequest", "ReportRunning", "ReportStopped",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(a))
}

type initiatorKey struct {
	state InitiatorState
	event Event
}

type initiatorTransition struct {
	newState InitiatorState
	actions  []Action
}

// InitiatorResult is the outcome of applying an event to the initiator
// FSM.
type InitiatorResult struct {
	OldState InitiatorState
	NewState InitiatorState
	Actions  []Action
	Changed  bool
}

//nolint:gochecknoglobals // table is intentionally package-level, mirrors internal/ranging/fsm.go.
var initiatorTable = map[initiatorKey]initiatorTransition{
	{InitIdle, EventBegin}: {
		InitAwaitCapabilityResponse,
		[]Action{ActionSendCapabilityRequest, ActionArmReceiveTimeout},
	},
	{InitAwaitCapabilityResponse, EventCapabilityResponseReceived}: {
		InitAwaitSetConfigResponse,
		[]Action{ActionCancelReceiveTimeout, ActionRunSelectorAndSendSetConfig, ActionArmReceiveTimeout},
	},
	{InitAwaitCapabilityResponse, EventTimeout}: {
		InitStopped,
		[]Action{ActionCloseTimeout},
	},
	{InitAwaitCapabilityResponse, EventUnexpectedMessage}: {
		InitStopped,
		[]Action{ActionCloseProtocolError},
	},
	{InitAwaitSetConfigResponse, EventSetConfigResponseReceived}: {
		InitAwaitStartResponse,
		[]Action{ActionCancelReceiveTimeout, ActionSendStartIfNonEmpty, ActionArmReceiveTimeout},
	},
	{InitAwaitSetConfigResponse, EventTimeout}: {
		InitStopped,
		[]Action{ActionCloseTimeout},
	},
	{InitAwaitSetConfigResponse, EventUnexpectedMessage}: {
		InitStopped,
		[]Action{ActionCloseProtocolError},
	},
	{InitAwaitStartResponse, EventStartResponseReceived}: {
		InitRunning,
		[]Action{ActionCancelReceiveTimeout, ActionReportRunning},
	},
	{InitAwaitStartResponse, EventTimeout}: {
		InitStopped,
		[]Action{ActionCloseTimeout},
	},
	{InitAwaitStartResponse, EventUnexpectedMessage}: {
		InitStopped,
		[]Action{ActionCloseProtocolError},
	},
	{InitRunning, EventStopRequested}: {
		InitAwaitStopResponse,
		[]Action{ActionSendStopRequest, ActionArmReceiveTimeout},
	},
	{InitAwaitStopResponse, EventStopResponseReceived}: {
		InitStopped,
		[]Action{ActionCancelReceiveTimeout, ActionReportStopped},
	},
	{InitAwaitStopResponse, EventTimeout}: {
		InitStopped,
		[]Action{ActionCloseTimeout},
	},
}

// ApplyInitiatorEvent looks up (state, event) in the initiator table.
// Unlisted pairs are a no-op, matching internal/ranging/fsm.go's
// convention.
func ApplyInitiatorEvent(state InitiatorState, event Event) InitiatorResult {
	t, ok := initiatorTable[initiatorKey{state, event}]
	if !ok {
		return InitiatorResult{OldState: state, NewState: state, Changed: false}
	}
	return InitiatorResult{
		OldState: state,
		NewState: t.newState,
		Actions:  t.actions,
		Changed:  t.newState != state,
	}
}

type responderKey struct {
	state ResponderState
	event Event
}

type responderTransition struct {
	newState ResponderState
	actions  []Action
}

// ResponderResult is the outcome of applying an event to the responder
// FSM.
type ResponderResult struct {
	OldState ResponderState
	NewState ResponderState
	Actions  []Action
	Changed  bool
}

//nolint:gochecknoglobals // table is intentionally package-level, mirrors internal/ranging/fsm.go.
var responderTable = map[responderKey]responderTransition{
	{RespIdle, EventCapabilityRequestReceived}: {
		RespAwaitSetConfig,
		[]Action{ActionSendCapabilityResponse, ActionArmReceiveTimeout},
	},
	{RespAwaitSetConfig, EventSetConfigReceived}: {
		RespAwaitStart,
		[]Action{ActionCancelReceiveTimeout, ActionValidateAndSendSetConfigResponse, ActionArmReceiveTimeout},
	},
	{RespAwaitSetConfig, EventTimeout}: {
		RespStopped,
		[]Action{ActionCloseTimeout},
	},
	{RespAwaitSetConfig, EventUnexpectedMessage}: {
		RespStopped,
		[]Action{ActionCloseProtocolError},
	},
	{RespAwaitStart, EventStartReceived}: {
		RespRunning,
		[]Action{ActionCancelReceiveTimeout, ActionSendStartResponse, ActionReportRunning},
	},
	{RespAwaitStart, EventTimeout}: {
		RespStopped,
		[]Action{ActionCloseTimeout},
	},
	{RespAwaitStart, EventUnexpectedMessage}: {
		RespStopped,
		[]Action{ActionCloseProtocolError},
	},
	{RespRunning, EventStopReceived}: {
		RespStopped,
		[]Action{ActionSendStopResponse, ActionReportStopped},
	},
}

// ApplyResponderEvent looks up (state, event) in the responder table.
// Unlisted pairs are a no-op.
func ApplyResponderEvent(state ResponderState, event Event) ResponderResult {
	t, ok := responderTable[responderKey{state, event}]
	if !ok {
		return ResponderResult{OldState: state, NewState: state, Changed: false}
	}
	return ResponderResult{
		OldState: state,
		NewState: t.newState,
		Actions:  t.actions,
		Changed:  t.newState != state,
	}
}
