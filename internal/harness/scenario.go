package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/svm/internal/compiler"
)

// Scenario drives an application through a fixed number of scan cycles.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// App is the path of the app description (CUE or YAML), relative to
	// the scenario file.
	App string `yaml:"app,omitempty"`

	// Inline is an app description embedded in the scenario. Exactly one
	// of App and Inline must be set.
	Inline *compiler.Description `yaml:"inline,omitempty"`

	// Cycles is how many scan cycles to run. The run ends earlier when
	// the app stops or restarts.
	Cycles int `yaml:"cycles"`

	// Watch lists "path.slot" values recorded after every cycle.
	Watch []string `yaml:"watch,omitempty"`

	// Steps change the app while it runs.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final app and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one change applied in the work phase of cycle At, after that
// cycle's tree walk. Exactly one of the operation fields is set.
type Step struct {
	At int `yaml:"at"`

	// Set assigns Value to the "path.slot" property.
	Set string `yaml:"set,omitempty"`

	// Invoke calls the "path.slot" action with Value.
	Invoke string `yaml:"invoke,omitempty"`

	// Value is the property value or action argument.
	Value any `yaml:"value,omitempty"`

	// Add creates the described component under Parent.
	Add    *compiler.ComponentSpec `yaml:"add,omitempty"`
	Parent string                  `yaml:"parent,omitempty"`

	// Remove deletes the component at this path.
	Remove string `yaml:"remove,omitempty"`

	// Link and Unlink take "a.out -> b.in".
	Link   string `yaml:"link,omitempty"`
	Unlink string `yaml:"unlink,omitempty"`
}

// Op returns the name of the step's operation.
func (s Step) Op() string {
	switch {
	case s.Set != "":
		return "set"
	case s.Invoke != "":
		return "invoke"
	case s.Add != nil:
		return "add"
	case s.Remove != "":
		return "remove"
	case s.Link != "":
		return "link"
	case s.Unlink != "":
		return "unlink"
	}
	return ""
}

func (s Step) ops() int {
	n := 0
	for _, set := range []bool{s.Set != "", s.Invoke != "", s.Add != nil, s.Remove != "", s.Link != "", s.Unlink != ""} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates the final state or trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": the "path.slot" in Slot equals Equals
	// - "result": the last loop result kind equals Equals
	// - "cycles": the number of cycles run equals Equals
	// - "images": the number of saved images equals Equals
	// - "trace_contains": a trace line equals Line
	// - "exists": the component at Path exists (Equals false: does not)
	Type string `yaml:"type"`

	Slot   string `yaml:"slot,omitempty"`
	Path   string `yaml:"path,omitempty"`
	Line   string `yaml:"line,omitempty"`
	Equals any    `yaml:"equals"`
}

// Assertion type constants.
const (
	AssertValue         = "value"
	AssertResult        = "result"
	AssertCycles        = "cycles"
	AssertImages        = "images"
	AssertTraceContains = "trace_contains"
	AssertExists        = "exists"
)

// LoadScenario reads and parses a scenario YAML file. A relative App path
// is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.App != "" && !filepath.IsAbs(scenario.App) {
		scenario.App = filepath.Join(filepath.Dir(path), scenario.App)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.App == "") == (s.Inline == nil) {
		return fmt.Errorf("exactly one of app and inline is required")
	}
	if s.App != "" {
		if _, err := os.Stat(s.App); os.IsNotExist(err) {
			return fmt.Errorf("app file not found: %s", s.App)
		}
	}
	if s.Cycles < 1 {
		return fmt.Errorf("cycles must be at least 1")
	}
	for i, w := range s.Watch {
		if _, err := compiler.ParseEndpoint(w); err != nil {
			return fmt.Errorf("watch[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if step.At < 1 || step.At > s.Cycles {
			return fmt.Errorf("steps[%d]: at must be within 1..%d", i, s.Cycles)
		}
		if step.ops() != 1 {
			return fmt.Errorf("steps[%d]: exactly one operation is required", i)
		}
		if step.Add != nil && step.Add.Name == "" {
			return fmt.Errorf("steps[%d]: add requires a name", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValue:
		if a.Slot == "" {
			return fmt.Errorf("assertions[%d]: slot is required for value", index)
		}
	case AssertResult, AssertCycles, AssertImages:
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for %s", index, a.Type)
		}
	case AssertTraceContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for trace_contains", index)
		}
	case AssertExists:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for exists", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
