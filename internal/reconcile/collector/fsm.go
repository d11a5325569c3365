package collector

import "github.com/dokzlo13/lmsync/internal/declare"

// Action represents what reconciliation action needs to be taken.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionDestroy
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreate:
		return "create"
	case ActionDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// DetermineAction maps (declared ensure, observed existence) to an action.
// Unknown -> {Exists, Absent} happens in Load; there are no pending states.
func DetermineAction(ensure declare.Ensure, exists bool) Action {
	switch {
	case ensure == declare.EnsureAbsent && exists:
		return ActionDestroy
	case ensure != declare.EnsureAbsent && !exists:
		return ActionCreate
	}
	return ActionNone
}
