package convflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// flowFile is the on-disk YAML schema. Nodes are a list so the file order
// stays readable; they are keyed by id after parsing.
type flowFile struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	StartNodeID string            `yaml:"start_node_id"`
	Platform    string            `yaml:"platform"`
	Active      *bool             `yaml:"active"`
	Variables   map[string]string `yaml:"variables"`
	Nodes       []*Node           `yaml:"nodes"`
}

// LoadFlowFile parses a single YAML flow definition.
func LoadFlowFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file %s: %w", path, err)
	}

	var file flowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse flow file %s: %w", path, err)
	}

	flow := &Flow{
		ID:          file.ID,
		Name:        file.Name,
		Description: file.Description,
		Nodes:       make(map[string]*Node, len(file.Nodes)),
		StartNodeID: file.StartNodeID,
		Variables:   file.Variables,
		Platform:    file.Platform,
		Active:      true,
	}
	if file.Active != nil {
		flow.Active = *file.Active
	}
	if flow.StartNodeID == "" {
		flow.StartNodeID = "start"
	}
	if flow.Platform == "" {
		flow.Platform = "all"
	}
	for _, node := range file.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("flow file %s: node without id", path)
		}
		if _, dup := flow.Nodes[node.ID]; dup {
			return nil, fmt.Errorf("flow file %s: duplicate node id %q", path, node.ID)
		}
		flow.Nodes[node.ID] = node
	}

	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("flow file %s: %w", path, err)
	}
	return flow, nil
}

// LoadFlowsDir loads every .yaml/.yml flow in a directory.
func LoadFlowsDir(dir string) ([]*Flow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flows directory %s: %w", dir, err)
	}

	var flows []*Flow
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		flow, err := LoadFlowFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// LoadFlowsFromDir loads a directory of flow definitions into the engine.
func (e *Engine) LoadFlowsFromDir(dir string) (int, error) {
	flows, err := LoadFlowsDir(dir)
	if err != nil {
		return 0, err
	}
	for _, flow := range flows {
		if err := e.AddFlow(flow); err != nil {
			return 0, err
		}
	}
	return len(flows), nil
}
