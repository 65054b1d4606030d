package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// HeaderField pairs a stored field name with its display label.
type HeaderField struct {
	Field string `json:"field" yaml:"field"`
	Label string `json:"label" yaml:"label"`
}

// HeaderMapping is an ordered field -> label mapping used by export sinks.
type HeaderMapping []HeaderField

// Fields returns the field names in order.
func (h HeaderMapping) Fields() []string {
	out := make([]string, len(h))
	for i, f := range h {
		out[i] = f.Field
	}
	return out
}

// Labels returns the display labels in order.
func (h HeaderMapping) Labels() []string {
	out := make([]string, len(h))
	for i, f := range h {
		out[i] = f.Label
	}
	return out
}

// UnmarshalYAML reads a YAML mapping node keeping key order.
func (h *HeaderMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: header mapping must be a mapping, got kind %d", node.Line, node.Kind)
	}
	out := make(HeaderMapping, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		label := val.Value
		if label == "" {
			label = key.Value
		}
		out = append(out, HeaderField{Field: key.Value, Label: label})
	}
	*h = out
	return nil
}

// ExportMapping is the root of the export mapping file: one header mapping
// per resource name.
type ExportMapping struct {
	Version string                   `yaml:"version"`
	Exports map[string]HeaderMapping `yaml:"exports"`
}

func LoadMapping(data []byte) (*ExportMapping, error) {
	var m ExportMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
