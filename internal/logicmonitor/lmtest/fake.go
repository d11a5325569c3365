// Package lmtest provides an in-memory fake of the inventory API for tests.
package lmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// Call is a recorded API call.
type Call struct {
	Method   string
	Endpoint string
	Body     json.RawMessage
}

// FailFunc may return an envelope to short-circuit a call.
type FailFunc func(method, endpoint string) *logicmonitor.Envelope

// Fake keeps collectors and device groups in memory and answers with the
// same envelopes and status codes as the real API.
type Fake struct {
	mu sync.Mutex

	nextID     int
	collectors []logicmonitor.Collector
	groups     []logicmonitor.DeviceGroup

	calls []Call

	// Fail, when set, is consulted before every call.
	Fail FailFunc
}

// New returns a fake holding only the root device group.
func New() *Fake {
	return &Fake{
		nextID: logicmonitor.RootGroupID + 1,
		groups: []logicmonitor.DeviceGroup{{ID: logicmonitor.RootGroupID, Name: "", FullPath: ""}},
	}
}

// AddCollector seeds a collector and returns its id.
func (f *Fake) AddCollector(description string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := logicmonitor.NewCollector(description)
	c.ID = f.allocID()
	f.collectors = append(f.collectors, c)
	return c.ID
}

// AddGroup seeds a device group under parentID and returns its id.
func (f *Fake) AddGroup(parentID int, name string, props map[string]string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := logicmonitor.DeviceGroup{ParentID: parentID, Name: name}
	for k, v := range props {
		g.CustomProperties = append(g.CustomProperties, logicmonitor.Property{Name: k, Value: v})
	}
	return f.insertGroup(g).ID
}

// Collectors returns a copy of all collectors in insertion order.
func (f *Fake) Collectors() []logicmonitor.Collector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logicmonitor.Collector(nil), f.collectors...)
}

// Groups returns a copy of all device groups including the root.
func (f *Fake) Groups() []logicmonitor.DeviceGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logicmonitor.DeviceGroup(nil), f.groups...)
}

// Group returns the group with the given id.
func (f *Fake) Group(id int) (logicmonitor.DeviceGroup, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.groupIndex(id); i >= 0 {
		return f.groups[i], true
	}
	return logicmonitor.DeviceGroup{}, false
}

// Calls returns all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountCalls counts recorded calls with the given method whose endpoint has the prefix.
func (f *Fake) CountCalls(method, prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && strings.HasPrefix(c.Endpoint, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Query implements the filtered read.
func (f *Fake) Query(_ context.Context, endpoint string, q logicmonitor.Query) (*logicmonitor.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(http.MethodGet, endpoint, nil)
	if env := f.fail(http.MethodGet, endpoint); env != nil {
		return env, nil
	}

	filter, err := logicmonitor.ParseFilter(q.Filter)
	if err != nil {
		return errorEnvelope(1007, err.Error()), nil
	}

	switch endpoint {
	case logicmonitor.CollectorsEndpoint:
		var matches []logicmonitor.Collector
		for _, c := range f.collectors {
			if v, ok := filter["description"]; ok && c.Description != v {
				continue
			}
			matches = append(matches, c)
		}
		return pageEnvelope(matches, q.Size), nil

	case logicmonitor.DeviceGroupsEndpoint:
		var matches []logicmonitor.DeviceGroup
		for _, g := range f.groups {
			if v, ok := filter["name"]; ok && g.Name != v {
				continue
			}
			if v, ok := filter["parentId"]; ok && strconv.Itoa(g.ParentID) != v {
				continue
			}
			if v, ok := filter["id"]; ok && strconv.Itoa(g.ID) != v {
				continue
			}
			matches = append(matches, g)
		}
		return pageEnvelope(matches, q.Size), nil
	}

	return errorEnvelope(logicmonitor.StatusNotFound, "unknown endpoint "+endpoint), nil
}

// Create implements POST.
func (f *Fake) Create(_ context.Context, endpoint string, body any) (*logicmonitor.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	f.record(http.MethodPost, endpoint, raw)
	if env := f.fail(http.MethodPost, endpoint); env != nil {
		return env, nil
	}

	switch endpoint {
	case logicmonitor.CollectorsEndpoint:
		var c logicmonitor.Collector
		if err := json.Unmarshal(raw, &c); err != nil {
			return errorEnvelope(1007, err.Error()), nil
		}
		c.ID = f.allocID()
		f.collectors = append(f.collectors, c)
		return itemEnvelope(c), nil

	case logicmonitor.DeviceGroupsEndpoint:
		var g logicmonitor.DeviceGroup
		if err := json.Unmarshal(raw, &g); err != nil {
			return errorEnvelope(1007, err.Error()), nil
		}
		if f.groupIndex(g.ParentID) < 0 {
			return errorEnvelope(1007, "parent group does not exist"), nil
		}
		for _, existing := range f.groups {
			if existing.ParentID == g.ParentID && existing.Name == g.Name {
				return errorEnvelope(1007, "group name already exists"), nil
			}
		}
		return itemEnvelope(f.insertGroup(g)), nil
	}

	return errorEnvelope(logicmonitor.StatusNotFound, "unknown endpoint "+endpoint), nil
}

// Update implements PATCH on a device group, honouring patchFields.
func (f *Fake) Update(_ context.Context, endpoint string, body any) (*logicmonitor.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	f.record(http.MethodPatch, endpoint, raw)
	if env := f.fail(http.MethodPatch, endpoint); env != nil {
		return env, nil
	}

	path, query, _ := strings.Cut(endpoint, "?")
	var id int
	if _, err := fmt.Sscanf(path, logicmonitor.DeviceGroupEndpoint, &id); err != nil {
		return errorEnvelope(logicmonitor.StatusNotFound, "unknown endpoint "+endpoint), nil
	}
	i := f.groupIndex(id)
	if i < 0 {
		return errorEnvelope(logicmonitor.StatusNotFound, "No such object"), nil
	}

	var patch logicmonitor.DeviceGroup
	if err := json.Unmarshal(raw, &patch); err != nil {
		return errorEnvelope(1007, err.Error()), nil
	}

	values, _ := url.ParseQuery(query)
	fields := strings.Split(values.Get("patchFields"), ",")
	g := f.groups[i]
	for _, field := range fields {
		switch field {
		case "description":
			g.Description = patch.Description
		case "disableAlerting":
			g.DisableAlerting = patch.DisableAlerting
		case "customProperties":
			g.CustomProperties = append([]logicmonitor.Property(nil), patch.CustomProperties...)
		}
	}
	f.groups[i] = g
	return itemEnvelope(g), nil
}

// Delete implements DELETE on a collector or device group.
func (f *Fake) Delete(_ context.Context, endpoint string) (*logicmonitor.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(http.MethodDelete, endpoint, nil)
	if env := f.fail(http.MethodDelete, endpoint); env != nil {
		return env, nil
	}

	var id int
	if _, err := fmt.Sscanf(endpoint, logicmonitor.CollectorEndpoint, &id); err == nil {
		for i, c := range f.collectors {
			if c.ID == id {
				f.collectors = append(f.collectors[:i], f.collectors[i+1:]...)
				return itemEnvelope(struct{}{}), nil
			}
		}
		return errorEnvelope(logicmonitor.StatusNotFound, "No such object"), nil
	}
	if _, err := fmt.Sscanf(endpoint, logicmonitor.DeviceGroupEndpoint, &id); err == nil {
		if i := f.groupIndex(id); i >= 0 && id != logicmonitor.RootGroupID {
			f.groups = append(f.groups[:i], f.groups[i+1:]...)
			return itemEnvelope(struct{}{}), nil
		}
		return errorEnvelope(logicmonitor.StatusNotFound, "No such object"), nil
	}

	return errorEnvelope(logicmonitor.StatusNotFound, "unknown endpoint "+endpoint), nil
}

func (f *Fake) allocID() int {
	id := f.nextID
	f.nextID++
	return id
}

func (f *Fake) insertGroup(g logicmonitor.DeviceGroup) logicmonitor.DeviceGroup {
	g.ID = f.allocID()
	if i := f.groupIndex(g.ParentID); i >= 0 {
		g.FullPath = strings.TrimPrefix(f.groups[i].FullPath+"/"+g.Name, "/")
	}
	f.groups = append(f.groups, g)
	return g
}

func (f *Fake) groupIndex(id int) int {
	for i, g := range f.groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (f *Fake) record(method, endpoint string, body json.RawMessage) {
	f.calls = append(f.calls, Call{Method: method, Endpoint: endpoint, Body: body})
}

func (f *Fake) fail(method, endpoint string) *logicmonitor.Envelope {
	if f.Fail == nil {
		return nil
	}
	return f.Fail(method, endpoint)
}

func pageEnvelope[T any](matches []T, size int) *logicmonitor.Envelope {
	total := len(matches)
	if size > 0 && len(matches) > size {
		matches = matches[:size]
	}
	if matches == nil {
		matches = []T{}
	}
	return itemEnvelope(logicmonitor.Page[T]{Total: total, Items: matches})
}

func itemEnvelope(data any) *logicmonitor.Envelope {
	payload, _ := json.Marshal(data)
	env := &logicmonitor.Envelope{Status: logicmonitor.StatusOK, Errmsg: "OK", Data: payload}
	env.Raw, _ = json.Marshal(env)
	return env
}

func errorEnvelope(status logicmonitor.Status, msg string) *logicmonitor.Envelope {
	env := &logicmonitor.Envelope{Status: status, Errmsg: msg}
	env.Raw, _ = json.Marshal(env)
	return env
}

// ServeHTTP serves the fake over HTTP with the real API's URL layout, so
// it can sit behind an httptest.Server and a real Client.
func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env *logicmonitor.Envelope
	var err error

	endpoint := r.URL.Path
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		size, _ := strconv.Atoi(q.Get("size"))
		env, err = f.Query(r.Context(), endpoint, logicmonitor.Query{
			Filter: q.Get("filter"),
			Fields: q.Get("fields"),
			Size:   size,
		})
	case http.MethodPost, http.MethodPatch:
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			env, err = f.Create(r.Context(), endpoint, body)
		} else {
			env, err = f.Update(r.Context(), endpoint+"?"+r.URL.RawQuery, body)
		}
	case http.MethodDelete:
		env, err = f.Delete(r.Context(), endpoint)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(env.Raw)
}

// ErrorEnvelope builds a failure envelope for use in FailFunc.
func ErrorEnvelope(status logicmonitor.Status, msg string) *logicmonitor.Envelope {
	return errorEnvelope(status, msg)
}
