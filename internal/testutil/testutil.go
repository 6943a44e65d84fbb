// Package testutil provides shared test helpers for setting up schemas,
// graph stores and services.
package testutil

import (
	"os"
	"testing"

	"github.com/thefounder-seb/btmg/internal/graph"
	"github.com/thefounder-seb/btmg/internal/memory"
	"github.com/thefounder-seb/btmg/internal/schema"
)

// TestSchemaDef returns a schema definition exercising every property
// kind plus the labels the scanner tests map onto.
func TestSchemaDef() *schema.Def {
	return &schema.Def{
		Nodes: []schema.NodeDef{
			{
				Label: "Service",
				Properties: map[string]schema.PropertyDef{
					"name":        {Kind: schema.KindString, Required: true},
					"status":      {Kind: schema.KindEnum, Values: []string{"active", "deprecated"}, Default: "active"},
					"description": {Kind: schema.KindString},
					"content":     {Kind: schema.KindString},
					"tags":        {Kind: schema.KindStringList},
					"docs":        {Kind: schema.KindURL},
					"owner":       {Kind: schema.KindEmail},
					"replicas":    {Kind: schema.KindNumber},
					"critical":    {Kind: schema.KindBoolean},
					"launched":    {Kind: schema.KindDate},
					"meta":        {Kind: schema.KindJSON},
				},
			},
			{
				Label: "File",
				Properties: map[string]schema.PropertyDef{
					"path":     {Kind: schema.KindString, Required: true},
					"language": {Kind: schema.KindString},
					"hash":     {Kind: schema.KindString},
				},
			},
			{
				Label: "Function",
				Properties: map[string]schema.PropertyDef{
					"name":     {Kind: schema.KindString, Required: true},
					"filePath": {Kind: schema.KindString},
					"line":     {Kind: schema.KindNumber},
				},
			},
			{
				Label: "Module",
				Properties: map[string]schema.PropertyDef{
					"name": {Kind: schema.KindString, Required: true},
				},
			},
			{
				Label: "Dependency",
				Properties: map[string]schema.PropertyDef{
					"name":    {Kind: schema.KindString, Required: true},
					"version": {Kind: schema.KindString},
				},
			},
		},
		Edges: []schema.EdgeDef{
			{Type: "DEPENDS_ON", From: "Service", To: "Service"},
			{Type: "IMPORTS", From: "File", To: "File"},
			{Type: "DEPENDS_ON", From: "Module", To: "Dependency"},
			{
				Type: "CALLS", From: "Function", To: "Function",
				Properties: map[string]schema.PropertyDef{
					"count": {Kind: schema.KindNumber},
				},
			},
		},
		Constraints: []schema.ConstraintDef{
			{Label: "Service", Property: "name", Kind: "index"},
		},
	}
}

// TestRegistry compiles the shared test schema.
func TestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Compile(TestSchemaDef())
	if err != nil {
		t.Fatalf("compile test schema: %v", err)
	}
	return reg
}

// TestStore creates a temporary SQLite graph store that is cleaned up
// automatically.
func TestStore(t *testing.T, reg *schema.Registry) *graph.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "btmg-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	var constraints []string
	if reg != nil {
		constraints = reg.ConstraintStatements()
	}
	store, err := graph.Open(dbFile.Name(), constraints)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestService wires a mutation pipeline over the shared schema and a
// temporary store.
func TestService(t *testing.T) *memory.Service {
	t.Helper()
	reg := TestRegistry(t)
	store := TestStore(t, reg)
	return memory.NewService(reg, store, nil)
}
