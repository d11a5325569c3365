package declare

import (
	"errors"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/", false},
		{"/puppet", false},
		{"/puppetlabs/puppet", false},
		{"puppet", true},
		{"", true},
		{"//puppet", true},
		{"/puppet/", true},
		{"/a//b", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("ValidatePath(%q) = %v, want ErrInvalidPath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidatePath(%q) = %v", tt.path, err)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	set := Set{
		NewCollector(Collector{Description: "host1.example.com", OSFamily: "Debian"}),
		NewCollector(Collector{Description: ""}),
		NewCollector(Collector{Description: "host2", OSFamily: "windows"}),
		NewDeviceGroup(DeviceGroup{FullPath: "/puppet", Properties: map[string]string{"mysql.port": "1234"}}),
		NewDeviceGroup(DeviceGroup{FullPath: "puppet"}),
		NewDeviceGroup(DeviceGroup{FullPath: "/gone", Ensure: EnsureAbsent}),
		NewDeviceGroup(DeviceGroup{FullPath: "/modes", Mode: "merge"}),
		NewDeviceGroup(DeviceGroup{FullPath: "/puppet"}),
	}

	valid, errs := Check(set)

	if len(valid) != 2 {
		t.Fatalf("valid = %d, want 2", len(valid))
	}
	if valid[0].Collector.OSFamily != "debian" {
		t.Errorf("OSFamily not normalized: %q", valid[0].Collector.OSFamily)
	}
	if valid[0].Collector.Ensure != EnsurePresent {
		t.Errorf("Ensure default = %q", valid[0].Collector.Ensure)
	}
	if valid[1].DeviceGroup.Mode != ModePurge {
		t.Errorf("Mode default = %q", valid[1].DeviceGroup.Mode)
	}

	if len(errs) != 6 {
		t.Fatalf("errs = %d (%v), want 6", len(errs), errs)
	}
	for _, err := range errs {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("error %v is not a ValidationError", err)
		}
	}
	if !errors.Is(errs[3], ErrGroupAbsentUnsupported) {
		t.Errorf("errs[3] = %v, want ErrGroupAbsentUnsupported", errs[3])
	}
	if !errors.Is(errs[5], ErrDuplicate) {
		t.Errorf("errs[5] = %v, want ErrDuplicate", errs[5])
	}
}

func TestParseYAML(t *testing.T) {
	t.Setenv("SNMP_COMMUNITY", "puppetlabs")

	set, err := ParseYAML([]byte(`
collectors:
  - description: host1.example.com
    osfam: redhat
device_groups:
  - fullpath: /puppet
    description: top level group
    properties:
      mysql.port: 1234
      snmp.community: ${SNMP_COMMUNITY}
  - fullpath: /puppetlabs/puppet
    alertenable: false
`))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(set) != 3 {
		t.Fatalf("len = %d, want 3", len(set))
	}
	if set[0].Key() != "collector/host1.example.com" {
		t.Errorf("Key = %q", set[0].Key())
	}

	g := set[1].DeviceGroup
	if g.Properties["mysql.port"] != "1234" || g.Properties["snmp.community"] != "puppetlabs" {
		t.Errorf("Properties = %v", g.Properties)
	}
	if g.AlertEnable != nil {
		t.Error("AlertEnable should be nil when not declared")
	}
	if a := set[2].DeviceGroup.AlertEnable; a == nil || *a {
		t.Errorf("AlertEnable = %v, want false", a)
	}
}
