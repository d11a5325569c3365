package modules

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lmsync/internal/declare"
)

const groupBuilderTypeName = "lm.device_group"

// DeclareModule collects declarations made by a script:
//
//	local lm = require("lm")
//	lm.collector({ description = "host1.example.com", osfam = "redhat" })
//	lm.device_group({ fullpath = "/puppet" })
//	  :property("mysql.port", 1234)
//	  :description("puppet managed")
type DeclareModule struct {
	set declare.Set
}

// NewDeclareModule creates an empty declaration collector.
func NewDeclareModule() *DeclareModule {
	return &DeclareModule{}
}

// Declarations returns everything declared so far, in declaration order.
func (m *DeclareModule) Declarations() declare.Set {
	return append(declare.Set(nil), m.set...)
}

// Loader is the module loader for Lua
func (m *DeclareModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(groupBuilderTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), groupBuilderMethods))

	mod := L.NewTable()
	L.SetField(mod, "collector", L.NewFunction(m.collector))
	L.SetField(mod, "device_group", L.NewFunction(m.deviceGroup))
	L.SetField(mod, "PRESENT", lua.LString(declare.EnsurePresent))
	L.SetField(mod, "ABSENT", lua.LString(declare.EnsureAbsent))

	L.Push(mod)
	return 1
}

// lm.collector(spec) - declare a collector, returns its key
func (m *DeclareModule) collector(L *lua.LState) int {
	tbl := L.CheckTable(1)

	c := declare.Collector{
		Description: optString(L, tbl, "description"),
		OSFamily:    optString(L, tbl, "osfam"),
		Ensure:      declare.Ensure(optString(L, tbl, "ensure")),
	}

	r := declare.NewCollector(c)
	m.set = append(m.set, r)
	L.Push(lua.LString(r.Key()))
	return 1
}

// lm.device_group(spec) - declare a device group, returns a builder
func (m *DeclareModule) deviceGroup(L *lua.LState) int {
	tbl := L.CheckTable(1)

	g := &declare.DeviceGroup{
		FullPath:    optString(L, tbl, "fullpath"),
		Description: optString(L, tbl, "description"),
		Mode:        declare.Mode(optString(L, tbl, "mode")),
		Ensure:      declare.Ensure(optString(L, tbl, "ensure")),
	}

	switch v := tbl.RawGetString("alertenable").(type) {
	case *lua.LNilType:
	case lua.LBool:
		enabled := bool(v)
		g.AlertEnable = &enabled
	default:
		L.ArgError(1, "alertenable must be a boolean")
	}

	switch v := tbl.RawGetString("properties").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		g.Properties = make(map[string]string)
		v.ForEach(func(k, val lua.LValue) {
			s, ok := scalarString(val)
			if !ok {
				L.ArgError(1, fmt.Sprintf("property %q must be a string, number or boolean", lua.LVAsString(k)))
			}
			g.Properties[lua.LVAsString(k)] = s
		})
	default:
		L.ArgError(1, "properties must be a table")
	}

	m.set = append(m.set, declare.Resource{Kind: declare.KindDeviceGroup, DeviceGroup: g})

	ud := L.NewUserData()
	ud.Value = g
	L.SetMetatable(ud, L.GetTypeMetatable(groupBuilderTypeName))
	L.Push(ud)
	return 1
}

var groupBuilderMethods = map[string]lua.LGFunction{
	"property":    groupBuilderProperty,
	"description": groupBuilderDescription,
	"alertenable": groupBuilderAlertEnable,
	"mode":        groupBuilderMode,
}

// checkGroupBuilder retrieves the declaration from the Lua stack.
func checkGroupBuilder(L *lua.LState) (*declare.DeviceGroup, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*declare.DeviceGroup); ok {
		return v, ud
	}
	L.ArgError(1, "lm.device_group expected")
	return nil, nil
}

// groupBuilderProperty sets one custom property (chainable).
func groupBuilderProperty(L *lua.LState) int {
	g, ud := checkGroupBuilder(L)
	name := L.CheckString(2)
	value, ok := scalarString(L.Get(3))
	if !ok {
		L.ArgError(3, "string, number or boolean expected")
	}
	if g.Properties == nil {
		g.Properties = make(map[string]string)
	}
	g.Properties[name] = value
	L.Push(ud)
	return 1
}

// groupBuilderDescription sets the description (chainable).
func groupBuilderDescription(L *lua.LState) int {
	g, ud := checkGroupBuilder(L)
	g.Description = L.CheckString(2)
	L.Push(ud)
	return 1
}

// groupBuilderAlertEnable sets alerting (chainable).
func groupBuilderAlertEnable(L *lua.LState) int {
	g, ud := checkGroupBuilder(L)
	enabled := L.CheckBool(2)
	g.AlertEnable = &enabled
	L.Push(ud)
	return 1
}

// groupBuilderMode sets the property mode (chainable).
func groupBuilderMode(L *lua.LState) int {
	g, ud := checkGroupBuilder(L)
	g.Mode = declare.Mode(L.CheckString(2))
	L.Push(ud)
	return 1
}

func optString(L *lua.LState, tbl *lua.LTable, field string) string {
	v := tbl.RawGetString(field)
	if v == lua.LNil {
		return ""
	}
	s, ok := v.(lua.LString)
	if !ok {
		L.ArgError(1, fmt.Sprintf("%s must be a string", field))
	}
	return string(s)
}
