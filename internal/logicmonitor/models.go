// Package logicmonitor is the client facade for the LogicMonitor inventory REST API.
package logicmonitor

import (
	"encoding/json"
	"fmt"
)

// Endpoints used by the reconcilers. Item endpoints are templated with the remote id.
const (
	CollectorsEndpoint   = "/setting/collectors"
	CollectorEndpoint    = "/setting/collectors/%d"
	DeviceGroupsEndpoint = "/device/groups"
	DeviceGroupEndpoint  = "/device/groups/%d"
)

// RootGroupID is the id of the device group tree root ("/").
const RootGroupID = 1

// Status is the API-level status code carried inside every response envelope.
// It is distinct from the HTTP status code.
type Status int

const (
	StatusOK       Status = 200
	StatusNotFound Status = 1069
)

// Envelope is the common response wrapper returned by every API call.
type Envelope struct {
	Status Status          `json:"status"`
	Errmsg string          `json:"errmsg"`
	Data   json.RawMessage `json:"data,omitempty"`

	// Raw is the undecoded response body, kept for alerts.
	Raw []byte `json:"-"`
}

// String returns the raw response when available.
func (e *Envelope) String() string {
	if e == nil {
		return "<nil response>"
	}
	if len(e.Raw) > 0 {
		return string(e.Raw)
	}
	return fmt.Sprintf(`{"status":%d,"errmsg":%q}`, e.Status, e.Errmsg)
}

// Page is the payload of list endpoints.
type Page[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// DecodePage decodes the envelope payload as a page of T.
// An envelope without data decodes to an empty page.
func DecodePage[T any](env *Envelope) (Page[T], error) {
	var page Page[T]
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return page, nil
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return page, fmt.Errorf("failed to decode page: %w", err)
	}
	return page, nil
}

// DecodeItem decodes the envelope payload as a single T (create/update responses).
func DecodeItem[T any](env *Envelope) (T, error) {
	var item T
	if env == nil || len(env.Data) == 0 {
		return item, fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(env.Data, &item); err != nil {
		return item, fmt.Errorf("failed to decode item: %w", err)
	}
	return item, nil
}

// Collector is a collector registration record.
type Collector struct {
	ID                 int    `json:"id,omitempty"`
	Description        string `json:"description"`
	BackupAgentID      int    `json:"backupAgentId"`
	EnableFailBack     bool   `json:"enableFailBack"`
	ResendIval         int    `json:"resendIval"`
	SuppressAlertClear bool   `json:"suppressAlertClear"`
	EscalatingChainID  int    `json:"escalatingChainId"`
	CollectorGroupID   int    `json:"collectorGroupId"`
}

// NewCollector returns a collector with the fixed default operational fields.
// These values are part of the wire contract of the create call.
func NewCollector(description string) Collector {
	return Collector{
		Description:        description,
		BackupAgentID:      0,
		EnableFailBack:     true,
		ResendIval:         15,
		SuppressAlertClear: false,
		EscalatingChainID:  0,
		CollectorGroupID:   1,
	}
}

// Property is a custom property set on a device group.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DeviceGroup is a node in the device group tree.
type DeviceGroup struct {
	ID               int        `json:"id,omitempty"`
	ParentID         int        `json:"parentId"`
	Name             string     `json:"name"`
	FullPath         string     `json:"fullPath,omitempty"`
	Description      string     `json:"description"`
	DisableAlerting  bool       `json:"disableAlerting"`
	CustomProperties []Property `json:"customProperties"`
}

// AlertEnable reports whether alerting is enabled for the group.
func (g DeviceGroup) AlertEnable() bool {
	return !g.DisableAlerting
}

// PropertyMap returns the custom properties keyed by name.
func (g DeviceGroup) PropertyMap() map[string]string {
	props := make(map[string]string, len(g.CustomProperties))
	for _, p := range g.CustomProperties {
		props[p.Name] = p.Value
	}
	return props
}
