package group

import (
	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// Action represents what reconciliation action needs to be taken.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionUpdate
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Actual is the observed state of a group.
type Actual struct {
	Exists bool
	Group  logicmonitor.DeviceGroup
}

// DetermineAction determines what action to take based on desired and actual state.
func DetermineAction(desired declare.DeviceGroup, actual Actual) Action {
	if !actual.Exists {
		return ActionCreate
	}
	if len(attributeFields(desired, actual.Group)) > 0 {
		return ActionUpdate
	}
	if desired.Mode == declare.ModePurge && !DiffProperties(desired.Properties, actual.Group.PropertyMap()).Empty() {
		return ActionUpdate
	}
	return ActionNone
}

// attributeFields lists the wire fields whose declared value differs from
// live. An empty description and a nil alertenable are not managed.
func attributeFields(desired declare.DeviceGroup, live logicmonitor.DeviceGroup) []string {
	var fields []string
	if desired.Description != "" && desired.Description != live.Description {
		fields = append(fields, "description")
	}
	if desired.AlertEnable != nil && *desired.AlertEnable != live.AlertEnable() {
		fields = append(fields, "disableAlerting")
	}
	return fields
}
