// Peer session FSM (spec 4.G).
//
// States: {IDLE, INITIALIZING, STARTED, STOPPING, STOPPED}. One instance
// per peer. The table below is a pure function of (state, event); callers
// execute the returned Actions themselves -- the table has no side
// effects, matching the "replacing state-machine helper" design note
// (spec 9).

package ranging

import "fmt"

// State is a peer session FSM state (spec 4.G).
type State uint8

const (
	StateIdle State = iota
	StateInitializing
	StateStarted
	StateStopping
	StateStopped
)

var stateNames = [...]string{"IDLE", "INITIALIZING", "STARTED", "STOPPING", "STOPPED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// Event drives the peer session FSM.
type Event uint8

const (
	// EventStart is the caller's request to begin ranging with the
	// session's configured adapters.
	EventStart Event = iota
	// EventAdapterStarted fires the first time any adapter reports
	// on_started.
	EventAdapterStarted
	// EventAdapterSetEmpty fires when the active adapter set becomes
	// empty while STARTED.
	EventAdapterSetEmpty
	// EventStopRequested is the caller's (or measurement-limit-driven)
	// request to stop.
	EventStopRequested
	// EventAllAdaptersStopped fires once every adapter issued a stop has
	// reported stopped.
	EventAllAdaptersStopped
	// EventForceCloseTimeout fires when the stop grace period elapses
	// with adapters still outstanding.
	EventForceCloseTimeout
	// EventNoInitialDataTimeout fires when no adapter reaches STARTED
	// before the no-initial-data timeout.
	EventNoInitialDataTimeout
)

var eventNames = [...]string{
	"Start", "AdapterStarted", "AdapterSetEmpty", "StopRequested",
	"AllAdaptersStopped", "ForceCloseTimeout", "NoInitialDataTimeout",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(e))
}

// Action is a side effect the caller must execute after ApplyEvent
// returns.
type Action uint8

const (
	ActionArmNoInitialDataTimer Action = iota
	ActionCancelNoInitialDataTimer
	ActionRaisePeerStarted
	ActionIssueStopToAdapters
	ActionArmForceCloseTimer
	ActionCancelForceCloseTimer
	ActionRaisePeerStoppedNormal
	ActionRaisePeerStoppedForced
	ActionRaiseOpenFailed
)

var actionNames = [...]string{
	"ArmNoInitialDataTimer", "CancelNoInitialDataTimer", "RaisePeerStarted",
	"IssueStopToAdapters", "ArmForceCloseTimer", "CancelForceCloseTimer",
	"RaisePeerStoppedNormal", "RaisePeerStoppedForced", "RaiseOpenFailed",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(a))
}

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	newState State
	actions  []Action
}

// FSMResult is the outcome of applying an event: the state before and
// after, the actions the caller must now execute, and whether the state
// actually changed.
type FSMResult struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

//nolint:gochecknoglobals // table is intentionally package-level, mirrors the adjacent negotiator/fsm.go tables.
var fsmTable = map[stateEvent]transition{
	{StateIdle, EventStart}: {
		StateInitializing,
		[]Action{ActionArmNoInitialDataTimer},
	},
	{StateInitializing, EventAdapterStarted}: {
		StateStarted,
		[]Action{ActionCancelNoInitialDataTimer, ActionRaisePeerStarted},
	},
	{StateInitializing, EventNoInitialDataTimeout}: {
		StateStopped,
		[]Action{ActionRaiseOpenFailed},
	},
	{StateInitializing, EventStopRequested}: {
		StateStopping,
		[]Action{ActionCancelNoInitialDataTimer, ActionIssueStopToAdapters, ActionArmForceCloseTimer},
	},
	{StateStarted, EventAdapterSetEmpty}: {
		StateStopped,
		[]Action{ActionRaisePeerStoppedNormal},
	},
	{StateStarted, EventStopRequested}: {
		StateStopping,
		[]Action{ActionIssueStopToAdapters, ActionArmForceCloseTimer},
	},
	{StateStopping, EventAllAdaptersStopped}: {
		StateStopped,
		[]Action{ActionCancelForceCloseTimer, ActionRaisePeerStoppedNormal},
	},
	{StateStopping, EventForceCloseTimeout}: {
		StateStopped,
		[]Action{ActionRaisePeerStoppedForced},
	},
}

// ApplyEvent looks up (currentState, event) in the table and returns the
// resulting transition. Pairs not present leave the state unchanged and
// return no actions -- this is not an error, matching the teacher's
// "unlisted pairs are a no-op" convention for events that do not apply in
// the current state.
func ApplyEvent(currentState State, event Event) FSMResult {
	t, ok := fsmTable[stateEvent{currentState, event}]
	if !ok {
		return FSMResult{OldState: currentState, NewState: currentState, Changed: false}
	}
	return FSMResult{
		OldState: currentState,
		NewState: t.newState,
		Actions:  t.actions,
		Changed:  t.newState != currentState,
	}
}
