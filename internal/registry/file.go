package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// nodesFile is the parsed YAML structure for the node registry:
// nodes: [{name, address, port, update}]
type nodesFile struct {
	Nodes []nodeEntry `yaml:"nodes"`
}

type nodeEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Update  *bool  `yaml:"update,omitempty"`
}

// FileSource reads hosts from a YAML node registry file.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the registry file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Hosts implements Source. Address defaults to the node name, port to the
// standard munin port, and update-eligibility to true.
func (s *FileSource) Hosts(ctx context.Context) ([]Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read node registry: %w", err)
	}

	var parsed nodesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse node registry: %w", err)
	}

	if err := validateNodes(parsed.Nodes); err != nil {
		return nil, err
	}

	hosts := make([]Host, 0, len(parsed.Nodes))
	for _, entry := range parsed.Nodes {
		host := Host{
			Name:          entry.Name,
			Address:       entry.Address,
			Port:          entry.Port,
			UpdateEnabled: true,
		}
		if host.Address == "" {
			host.Address = entry.Name
		}
		if host.Port == 0 {
			host.Port = DefaultNodePort
		}
		if entry.Update != nil {
			host.UpdateEnabled = *entry.Update
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// validateNodes ensures all registry entries are usable.
func validateNodes(nodes []nodeEntry) error {
	if len(nodes) == 0 {
		return fmt.Errorf("node registry contains no nodes")
	}

	seen := make(map[string]bool)

	for i, node := range nodes {
		if node.Name == "" {
			return fmt.Errorf("node %d: name is required", i)
		}

		if seen[node.Name] {
			return fmt.Errorf("node %q: duplicate name", node.Name)
		}
		seen[node.Name] = true

		if node.Port < 0 || node.Port > 65535 {
			return fmt.Errorf("node %q: port out of range", node.Name)
		}
	}

	return nil
}
