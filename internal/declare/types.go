// Package declare holds the operator-declared desired state: the resources
// to reconcile and the checks applied to them before any API interaction.
package declare

import "fmt"

// Kind identifies a declared resource type.
type Kind string

const (
	KindCollector   Kind = "collector"
	KindDeviceGroup Kind = "device_group"
)

// Ensure is the declared presence of a resource.
type Ensure string

const (
	EnsurePresent Ensure = "present"
	EnsureAbsent  Ensure = "absent"
)

// Mode is the management policy of a device group.
type Mode string

// ModePurge removes properties not declared by the operator.
const ModePurge Mode = "purge"

// Collector declares a collector registration, keyed by description.
type Collector struct {
	Description string `yaml:"description" validate:"required"`
	OSFamily    string `yaml:"osfam" validate:"omitempty,oneof=redhat debian amazon"`
	Ensure      Ensure `yaml:"ensure" validate:"omitempty,oneof=present absent"`
}

// DeviceGroup declares a device group, keyed by its full path.
type DeviceGroup struct {
	FullPath    string            `yaml:"fullpath" validate:"required,startswith=/"`
	Description string            `yaml:"description"`
	Properties  map[string]string `yaml:"properties"`
	AlertEnable *bool             `yaml:"alertenable"` // nil = no opinion
	Mode        Mode              `yaml:"mode" validate:"omitempty,oneof=purge"`
	Ensure      Ensure            `yaml:"ensure" validate:"omitempty,oneof=present absent"`
}

// Resource is a tagged union over the declared resource kinds.
// Exactly one of Collector and DeviceGroup is set, matching Kind.
type Resource struct {
	Kind        Kind
	Collector   *Collector
	DeviceGroup *DeviceGroup
}

// NewCollector wraps a collector declaration.
func NewCollector(c Collector) Resource {
	return Resource{Kind: KindCollector, Collector: &c}
}

// NewDeviceGroup wraps a device group declaration.
func NewDeviceGroup(g DeviceGroup) Resource {
	return Resource{Kind: KindDeviceGroup, DeviceGroup: &g}
}

// Identity returns the unique key of the resource within its kind.
func (r Resource) Identity() string {
	switch r.Kind {
	case KindCollector:
		if r.Collector != nil {
			return r.Collector.Description
		}
	case KindDeviceGroup:
		if r.DeviceGroup != nil {
			return r.DeviceGroup.FullPath
		}
	}
	return ""
}

// Key returns "kind/identity".
func (r Resource) Key() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Identity())
}

// Set is an ordered list of declarations. Order is the reconciliation order.
type Set []Resource
