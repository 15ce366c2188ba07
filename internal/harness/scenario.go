package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines one transform test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Classes are the application classes of the run.
	Classes []ClassSpec `yaml:"classes"`

	// Rules are the host-context rules of the run, in order.
	Rules []string `yaml:"rules,omitempty"`

	// ExpectError is the error code the run must abort with. Empty means
	// the run must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the trace, the ledger and the resulting classes.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID. If empty, defaults to
	// "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// ClassSpec describes one application class.
type ClassSpec struct {
	Name               string       `yaml:"name"`
	Super              string       `yaml:"super,omitempty"`
	Interface          bool         `yaml:"interface,omitempty"`
	Implements         []string     `yaml:"implements,omitempty"`
	Fields             []FieldSpec  `yaml:"fields,omitempty"`
	DefaultConstructor bool         `yaml:"default_constructor,omitempty"`
	Methods            []MethodSpec `yaml:"methods,omitempty"`
}

// FieldSpec declares a private field.
type FieldSpec struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
}

// MethodSpec declares a method. Code holds one instruction per line; a
// method without code is native.
type MethodSpec struct {
	Name       string   `yaml:"name"`
	Access     []string `yaml:"access"`
	Descriptor string   `yaml:"descriptor"`
	Code       string   `yaml:"code,omitempty"`
}

// EventMatch selects events. Empty fields match anything.
type EventMatch struct {
	Step    string `yaml:"step,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Detail  string `yaml:"detail,omitempty"`
}

// Assertion validates trace, ledger or class state.
type Assertion struct {
	// Type specifies the assertion type; see the package documentation.
	Type string `yaml:"type"`

	// EventMatch selects events (trace_contains, trace_count).
	EventMatch `yaml:",inline"`

	// Events is the expected event order (trace_order).
	Events []EventMatch `yaml:"events,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect select and check one ledger row
	// (final_state).
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Class is the class under test (extends, disasm_contains,
	// no_reference).
	Class string `yaml:"class,omitempty"`

	// Super is the expected superclass (extends).
	Super string `yaml:"super,omitempty"`

	// Text must appear in the class's disassembly (disasm_contains).
	Text string `yaml:"text,omitempty"`

	// Target must not be referenced (no_reference).
	Target string `yaml:"target,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertFinalState     = "final_state"
	AssertExtends        = "extends"
	AssertDisasmContains = "disasm_contains"
	AssertNoReference    = "no_reference"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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

// LoadScenarios loads every *.yaml and *.yml scenario in dir, in file name
// order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
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
	if len(s.Classes) == 0 {
		return fmt.Errorf("classes list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list or expect_error is required")
	}

	seen := map[string]bool{}
	for i, c := range s.Classes {
		if c.Name == "" {
			return fmt.Errorf("classes[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("classes[%d]: duplicate class %s", i, c.Name)
		}
		seen[c.Name] = true
		for j, m := range c.Methods {
			if m.Name == "" || m.Descriptor == "" {
				return fmt.Errorf("classes[%d].methods[%d]: name and descriptor are required", i, j)
			}
			for _, word := range m.Access {
				if _, ok := accessFlags[word]; !ok {
					return fmt.Errorf("classes[%d].methods[%d]: unknown access %q", i, j, word)
				}
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func (m EventMatch) empty() bool {
	return m == EventMatch{}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.EventMatch.empty() {
			return fmt.Errorf("assertions[%d]: at least one of step, kind, subject, detail is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: events list of at least two is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertExtends:
		if a.Class == "" || a.Super == "" {
			return fmt.Errorf("assertions[%d]: class and super are required for extends", index)
		}
	case AssertDisasmContains:
		if a.Class == "" || strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("assertions[%d]: class and text are required for disasm_contains", index)
		}
	case AssertNoReference:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for no_reference", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
