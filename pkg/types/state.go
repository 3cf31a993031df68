package types

// AlertState is the debounce state of the alert loop.
type AlertState string

const (
	// AlertArmed means a qualifying detection may fire the alert action
	AlertArmed AlertState = "armed"

	// AlertCoolingDown means the action already fired and further triggers
	// are suppressed until the re-arm policy is satisfied
	AlertCoolingDown AlertState = "cooling_down"
)

// RearmPolicy decides which event returns the alert machine to AlertArmed.
type RearmPolicy string

const (
	// RearmOnActionComplete re-arms when the alert action reports completion,
	// whether or not the detection condition is still true.
	RearmOnActionComplete RearmPolicy = "on-action-complete"

	// RearmOnConditionClear re-arms on the first non-qualifying tick.
	RearmOnConditionClear RearmPolicy = "on-condition-clear"

	// RearmBoth re-arms only once the action completed and a non-qualifying
	// tick has been observed since the alert fired.
	RearmBoth RearmPolicy = "both"
)

// ValidRearmPolicies contains all valid re-arm policy values
var ValidRearmPolicies = []RearmPolicy{
	RearmOnActionComplete,
	RearmOnConditionClear,
	RearmBoth,
}

// IsValidRearmPolicy checks if the given policy is supported.
func IsValidRearmPolicy(p RearmPolicy) bool {
	for _, valid := range ValidRearmPolicies {
		if p == valid {
			return true
		}
	}
	return false
}

// IsValidAlertTransition validates alert state transitions.
//
// Valid transitions:
//
//	armed -> cooling_down      (qualifying detection fires the action)
//	cooling_down -> armed      (re-arm policy satisfied)
//
// Self transitions are not transitions and are rejected.
func IsValidAlertTransition(from, to AlertState) bool {
	switch from {
	case AlertArmed:
		return to == AlertCoolingDown
	case AlertCoolingDown:
		return to == AlertArmed
	default:
		return false
	}
}

// Phase is the activity a device is currently running against its store.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseTraining   Phase = "training"
	PhaseMonitoring Phase = "monitoring"
)
