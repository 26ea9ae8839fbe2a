// Package scenario holds the patient personas a simulated call can play.
//
// A scenario gives the patient a goal, extra speaking instructions and an optional
// first utterance spoken as soon as the stream starts. The built-in catalog can be
// replaced or extended from a YAML file.
package scenario

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultID is used when a stream starts without a scenario_id parameter.
const DefaultID = "schedule_new"

// Scenario describes one patient persona and what it is trying to get done.
type Scenario struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Goal           string `yaml:"goal"`
	Instructions   string `yaml:"instructions"`
	FirstUtterance string `yaml:"first_utterance,omitempty"`
}

// Catalog is a read-only set of scenarios keyed by ID. It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

// NewCatalog returns a catalog holding the given scenarios.
func NewCatalog(scenarios ...Scenario) *Catalog {
	c := &Catalog{scenarios: make(map[string]Scenario, len(scenarios))}
	for _, s := range scenarios {
		c.scenarios[s.ID] = s
	}
	return c
}

// Default returns a catalog with the built-in scenarios.
func Default() *Catalog {
	return NewCatalog(builtin...)
}

// Get looks a scenario up by ID.
func (c *Catalog) Get(id string) (Scenario, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scenarios[id]
	return s, ok
}

// IDs returns every scenario ID in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.scenarios))
	for id := range c.scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fallback is the persona used when a call names a scenario the catalog lacks.
func Fallback(id string) Scenario {
	return Scenario{
		ID:           id,
		Name:         "General",
		Goal:         "Have a natural conversation with the office.",
		Instructions: "Respond briefly and naturally.",
	}
}

type file struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads scenarios from a YAML document and merges them over base.
// Entries in the file replace built-in scenarios with the same ID.
func LoadFile(path string, base *Catalog) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios file %s: %w", path, err)
	}

	merged := NewCatalog()
	if base != nil {
		base.mu.RLock()
		for id, s := range base.scenarios {
			merged.scenarios[id] = s
		}
		base.mu.RUnlock()
	}
	for i, s := range f.Scenarios {
		if s.ID == "" {
			return nil, fmt.Errorf("scenario %d in %s has no id", i, path)
		}
		if s.Goal == "" {
			return nil, fmt.Errorf("scenario %q in %s has no goal", s.ID, path)
		}
		merged.scenarios[s.ID] = s
	}
	return merged, nil
}
