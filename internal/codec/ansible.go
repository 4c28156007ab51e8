package codec

import (
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnsibleCodec exports devices as an Ansible inventory, grouped by
// location. It joins the snapshot's devices and locations keys.
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string         `yaml:"ansible_host,omitempty"`
	Vars        map[string]any `yaml:",inline"`
}

// Export writes the devices of a snapshot as an Ansible inventory, one
// group per location. Devices without a location land under all.hosts.
func (c *AnsibleCodec) Export(snap Snapshot, w io.Writer) error {
	locationNames := map[string]string{}
	for _, loc := range snap["locations"] {
		locationNames[loc.ID()] = loc.String("name")
	}

	inv := ansibleInventory{
		All: ansibleGroup{
			Children: map[string]ansibleGroupDef{},
			Hosts:    map[string]ansibleHost{},
		},
	}

	for _, device := range snap["devices"] {
		name := device.String("name")
		if name == "" {
			name = device.ID()
		}
		host := ansibleHost{
			AnsibleHost: device.String("primary_ip"),
			Vars:        map[string]any{},
		}
		if platform := device.String("platform"); platform != "" {
			host.Vars["platform"] = platform
		}
		if serial := device.String("serial"); serial != "" {
			host.Vars["serial"] = serial
		}

		group := groupName(locationNames[device.String("location")])
		if group == "" {
			inv.All.Hosts[name] = host
			continue
		}
		def := inv.All.Children[group]
		if def.Hosts == nil {
			def.Hosts = map[string]ansibleHost{}
		}
		def.Hosts[name] = host
		inv.All.Children[group] = def
	}

	if len(inv.All.Children) == 0 {
		inv.All.Children = nil
	}
	if len(inv.All.Hosts) == 0 {
		inv.All.Hosts = nil
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	enc.SetIndent(2)
	return enc.Encode(inv)
}

// groupName converts a location name into an Ansible-safe group name.
func groupName(location string) string {
	group := strings.ToLower(strings.TrimSpace(location))
	group = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, group)
	return strings.Trim(group, "_")
}
