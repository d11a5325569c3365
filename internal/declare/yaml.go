package declare

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lmsync/internal/config"
)

// File is the YAML declaration document.
//
//	collectors:
//	  - description: host1.example.com
//	device_groups:
//	  - fullpath: /puppet
//	    properties: {mysql.port: "1234"}
type File struct {
	Collectors   []Collector   `yaml:"collectors"`
	DeviceGroups []DeviceGroup `yaml:"device_groups"`
}

// Set returns collectors first, then device groups, each in file order.
func (f File) Set() Set {
	set := make(Set, 0, len(f.Collectors)+len(f.DeviceGroups))
	for _, c := range f.Collectors {
		set = append(set, NewCollector(c))
	}
	for _, g := range f.DeviceGroups {
		set = append(set, NewDeviceGroup(g))
	}
	return set
}

// ParseYAML parses a declaration document, expanding ${VAR} references.
func ParseYAML(data []byte) (Set, error) {
	var f File
	if err := yaml.Unmarshal([]byte(config.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse declarations: %w", err)
	}
	return f.Set(), nil
}

// LoadFile reads a YAML declaration file.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}
