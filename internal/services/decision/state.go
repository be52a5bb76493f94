package decision

import "fmt"

// LightState is the lifecycle state of a zone's lighting.
type LightState string

const (
	StateOff            LightState = "OFF"
	StateRampingOn      LightState = "RAMPING_ON"
	StateOn             LightState = "ON"
	StateDimmed         LightState = "DIMMED"
	StateForcedOff      LightState = "FORCED_OFF"
	StateManualOverride LightState = "MANUAL_OVERRIDE"
)

// stateEvent is an internal transition trigger derived from a decision.
type stateEvent int

const (
	eventWantOff stateEvent = iota
	eventWantFull
	eventWantDimmed
	eventRampDone
	eventForceOff
	eventClearForce
	eventManual
	eventManualExpired
)

// Machine tracks a single zone's lighting state. ForcedOff is absorbing:
// no event other than an explicit clear leaves it. ManualOverride sticks
// until expiry or removal, then the next decision cycle re-settles the
// state from automatic control.
type Machine struct {
	state LightState
}

// NewMachine starts a machine in the Off state.
func NewMachine() *Machine {
	return &Machine{state: StateOff}
}

// State returns the current state.
func (m *Machine) State() LightState { return m.state }

// apply performs one transition. Unknown or inapplicable events leave the
// state unchanged and report false.
func (m *Machine) apply(ev stateEvent) bool {
	next, ok := transition(m.state, ev)
	if !ok {
		return false
	}
	m.state = next
	return true
}

func transition(cur LightState, ev stateEvent) (LightState, bool) {
	// Absorbing and short-circuit states first.
	switch cur {
	case StateForcedOff:
		if ev == eventClearForce {
			return StateOff, true
		}
		return cur, false
	case StateManualOverride:
		switch ev {
		case eventForceOff:
			return StateForcedOff, true
		case eventManualExpired:
			return StateOff, true
		}
		return cur, false
	}

	switch ev {
	case eventForceOff:
		return StateForcedOff, true
	case eventManual:
		return StateManualOverride, true
	case eventWantOff:
		return StateOff, cur != StateOff
	case eventWantFull:
		switch cur {
		case StateOff:
			return StateRampingOn, true
		case StateDimmed:
			return StateOn, true
		}
		return cur, false
	case eventWantDimmed:
		if cur == StateOff {
			return StateRampingOn, true
		}
		return StateDimmed, cur != StateDimmed
	case eventRampDone:
		if cur == StateRampingOn {
			return StateOn, true
		}
		return cur, false
	}
	return cur, false
}

func (s LightState) valid() bool {
	switch s {
	case StateOff, StateRampingOn, StateOn, StateDimmed, StateForcedOff, StateManualOverride:
		return true
	}
	return false
}

// ParseState validates a stored state string.
func ParseState(s string) (LightState, error) {
	st := LightState(s)
	if !st.valid() {
		return StateOff, fmt.Errorf("unknown light state %q", s)
	}
	return st, nil
}
