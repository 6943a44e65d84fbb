// Package schema implements the declarative schema registry and the
// validator compiler that gates every mutation.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PropertyKind enumerates the value kinds a property may declare.
type PropertyKind string

const (
	KindString     PropertyKind = "string"
	KindNumber     PropertyKind = "number"
	KindBoolean    PropertyKind = "boolean"
	KindDate       PropertyKind = "date"
	KindURL        PropertyKind = "url"
	KindEmail      PropertyKind = "email"
	KindEnum       PropertyKind = "enum"
	KindStringList PropertyKind = "stringList"
	KindJSON       PropertyKind = "json"
)

// PropertyDef declares one property of a node or edge.
type PropertyDef struct {
	Kind     PropertyKind `yaml:"kind" json:"kind"`
	Required bool         `yaml:"required" json:"required"`
	Values   []string     `yaml:"values,omitempty" json:"values,omitempty"`
	Default  any          `yaml:"default,omitempty" json:"default,omitempty"`
}

// NodeDef declares one node label.
type NodeDef struct {
	Label      string                 `yaml:"label" json:"label"`
	Properties map[string]PropertyDef `yaml:"properties" json:"properties"`
	UniqueKeys []string               `yaml:"unique_keys,omitempty" json:"uniqueKeys,omitempty"`
}

// EdgeDef declares one relationship type between two labels.
type EdgeDef struct {
	Type       string                 `yaml:"type" json:"type"`
	From       string                 `yaml:"from" json:"from"`
	To         string                 `yaml:"to" json:"to"`
	Properties map[string]PropertyDef `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// ConstraintDef requests a storage-level index for a label/property pair.
type ConstraintDef struct {
	Label    string `yaml:"label" json:"label"`
	Property string `yaml:"property" json:"property"`
	Kind     string `yaml:"kind" json:"kind"` // "index" or "unique"
}

// Def is the process-wide schema, loaded once at startup.
type Def struct {
	Nodes       []NodeDef       `yaml:"nodes" json:"nodes"`
	Edges       []EdgeDef       `yaml:"edges" json:"edges"`
	Constraints []ConstraintDef `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// LoadFile reads a schema definition from a YAML file.
func LoadFile(path string) (*Def, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	var def Def
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	return &def, nil
}
