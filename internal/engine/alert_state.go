package engine

import (
	"github.com/scrypster/notouch/pkg/types"
)

// AlertMachine is the debounce state machine of the alert loop.
//
// States are types.AlertArmed and types.AlertCoolingDown. A qualifying
// detection in AlertArmed moves to AlertCoolingDown and asks the caller to
// fire; while cooling down further detections are suppressed. Which event
// re-arms the machine is set by its RearmPolicy:
//
//	on-action-complete  the action's finished signal re-arms, even if the
//	                    detection is still ongoing (it then fires again on
//	                    the next qualifying tick)
//	on-condition-clear  the first non-qualifying tick re-arms
//	both                re-arms once both have happened since the fire
//
// Independently of the policy, the machine never fires while the previous
// action has not reported completion.
//
// AlertMachine is not safe for concurrent use; the alert loop owns it.
type AlertMachine struct {
	policy   types.RearmPolicy
	state    types.AlertState
	inFlight bool
	cleared  bool // a non-qualifying tick was seen since the last fire
}

// NewAlertMachine returns an armed machine.
// An invalid policy falls back to on-action-complete.
func NewAlertMachine(policy types.RearmPolicy) *AlertMachine {
	if !types.IsValidRearmPolicy(policy) {
		policy = types.RearmOnActionComplete
	}
	return &AlertMachine{
		policy: policy,
		state:  types.AlertArmed,
	}
}

// State returns the current state.
func (m *AlertMachine) State() types.AlertState {
	return m.state
}

// Policy returns the re-arm policy.
func (m *AlertMachine) Policy() types.RearmPolicy {
	return m.policy
}

// InFlight reports whether a fired action has not yet reported completion.
func (m *AlertMachine) InFlight() bool {
	return m.inFlight
}

// Observe feeds one tick's outcome into the machine and reports whether the
// alert action must be fired now.
func (m *AlertMachine) Observe(qualifying bool) (fire bool) {
	if !qualifying {
		m.cleared = true
		switch m.policy {
		case types.RearmOnConditionClear:
			m.state = types.AlertArmed
		case types.RearmBoth:
			if !m.inFlight {
				m.state = types.AlertArmed
			}
		}
		return false
	}

	if m.state != types.AlertArmed || m.inFlight {
		return false
	}

	m.state = types.AlertCoolingDown
	m.inFlight = true
	m.cleared = false
	return true
}

// ActionFinished records the alert action's completion signal.
// A signal without an action in flight is ignored.
func (m *AlertMachine) ActionFinished() {
	if !m.inFlight {
		return
	}
	m.inFlight = false

	if m.state != types.AlertCoolingDown {
		return
	}
	switch m.policy {
	case types.RearmOnActionComplete:
		m.state = types.AlertArmed
	case types.RearmBoth:
		if m.cleared {
			m.state = types.AlertArmed
		}
	}
}
