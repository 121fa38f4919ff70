package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE spec files providing named queries and enrichers.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty"`

	// Seed entries are written before the flow runs.
	Seed []EntryStep `yaml:"seed,omitempty"`

	// Flow contains the steps to execute, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: result_count, result_keys, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EntryStep is a key and a value in YAML form. Key segments are separated
// by "/".
type EntryStep struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// FlowStep is one step of the flow. Exactly one of Set, Delete, Query,
// Inline or Enrich is set.
type FlowStep struct {
	// Set writes an entry.
	Set *EntryStep `yaml:"set,omitempty"`

	// Delete removes a key.
	Delete string `yaml:"delete,omitempty"`

	// Query names a query from the scenario's specs.
	Query string `yaml:"query,omitempty"`

	// Inline is a query in wire form.
	Inline map[string]any `yaml:"inline,omitempty"`

	// Enrich is an object to run through the enrichers.
	Enrich map[string]any `yaml:"enrich,omitempty"`

	// Expect is the exact expected outcome: a list of {key, value} for
	// queries, the enriched object for enrich steps.
	Expect any `yaml:"expect,omitempty"`

	// ExpectError, if set, requires the step to fail with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// kind returns the step's type, or "" if not exactly one is set.
func (s FlowStep) kind() string {
	var kinds []string
	if s.Set != nil {
		kinds = append(kinds, EventSet)
	}
	if s.Delete != "" {
		kinds = append(kinds, EventDelete)
	}
	if s.Query != "" || s.Inline != nil {
		kinds = append(kinds, EventQuery)
	}
	if s.Query != "" && s.Inline != nil {
		return ""
	}
	if s.Enrich != nil {
		kinds = append(kinds, EventEnrich)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "result_count": query step Step returned exactly Count results
	// - "result_keys": query step Step returned Keys, in order
	// - "trace_count": the trace holds exactly Count events of type Event
	// - "final_state": the value at Key matches Expect (subset match)
	Type string `yaml:"type"`

	// Step is a zero-based flow index (result_count, result_keys).
	Step int `yaml:"step,omitempty"`

	// Count is the expected number (result_count, trace_count).
	Count int `yaml:"count,omitempty"`

	// Keys are the expected result keys (result_keys).
	Keys []string `yaml:"keys,omitempty"`

	// Event is the event type to count (trace_count).
	Event string `yaml:"event,omitempty"`

	// Key is the store key to inspect (final_state).
	Key string `yaml:"key,omitempty"`

	// Expect is the expected value (final_state). Objects match as subsets;
	// an omitted or null expectation requires the key to be absent.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertResultCount = "result_count"
	AssertResultKeys  = "result_keys"
	AssertTraceCount  = "trace_count"
	AssertFinalState  = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateSpecPaths(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, entry := range s.Seed {
		if entry.Key == "" {
			return fmt.Errorf("seed[%d]: key is required", i)
		}
	}

	for i, step := range s.Flow {
		switch step.kind() {
		case "":
			return fmt.Errorf("flow[%d]: exactly one of set, delete, query, inline or enrich is required", i)
		case EventSet:
			if step.Set.Key == "" {
				return fmt.Errorf("flow[%d].set: key is required", i)
			}
		case EventQuery:
			if step.Query != "" && len(s.Specs) == 0 {
				return fmt.Errorf("flow[%d]: named query %q requires specs", i, step.Query)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}

	return nil
}

func validateSpecPaths(s *Scenario) error {
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResultCount, AssertResultKeys:
		if a.Step < 0 || a.Step >= len(s.Flow) || s.Flow[a.Step].kind() != EventQuery {
			return fmt.Errorf("assertions[%d]: step %d is not a query step", index, a.Step)
		}
		if a.Type == AssertResultCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceCount:
		switch a.Event {
		case EventSet, EventDelete, EventQuery, EventEnrich:
		default:
			return fmt.Errorf("assertions[%d]: unknown event type %q for trace_count", index, a.Event)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
