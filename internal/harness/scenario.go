package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldnet/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario builds one scene, applies a sequence of writes and reads to it
// inside a single evaluation pass, and asserts on the recorded trace and the
// final field values.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is the path of the CUE file declaring the scene.
	// Relative paths are resolved against the scenario file's directory.
	Scene string `yaml:"scene"`

	// SceneName selects a scene when the file declares more than one.
	SceneName string `yaml:"scene_name,omitempty"`

	// PassToken is an optional fixed pass token for deterministic traces.
	// If empty, defaults to testutil.DefaultPassToken.
	PassToken string `yaml:"pass_token,omitempty"`

	// CycleCheck makes route steps refuse routes that would close a cycle.
	CycleCheck bool `yaml:"cycle_check,omitempty"`

	// Steps are applied in order inside one pass.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state after the pass.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation against the scene. Exactly one of the operation keys
// (set, push, get, route, unroute, touch) names the field it applies to.
type Step struct {
	Set     string `yaml:"set,omitempty"`
	Push    string `yaml:"push,omitempty"`
	Get     string `yaml:"get,omitempty"`
	Route   string `yaml:"route,omitempty"`
	Unroute string `yaml:"unroute,omitempty"`
	Touch   string `yaml:"touch,omitempty"`

	// To is the destination field of route and unroute.
	To string `yaml:"to,omitempty"`

	// Value is the text argument of set and push.
	Value string `yaml:"value,omitempty"`

	// Caller names the entity performing the step: a node name, "@user",
	// or empty for a trusted internal caller.
	Caller string `yaml:"caller,omitempty"`

	// Expect is the text a get must return.
	Expect *string `yaml:"expect,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operation names.
const (
	StepSet     = "set"
	StepPush    = "push"
	StepGet     = "get"
	StepRoute   = "route"
	StepUnroute = "unroute"
	StepTouch   = "touch"
)

// Op returns the operation of the step and the field path it applies to.
// Returns empty strings if no operation key is set.
func (s Step) Op() (op, path string) {
	for _, c := range s.ops() {
		if c[1] != "" {
			return c[0], c[1]
		}
	}
	return "", ""
}

func (s Step) ops() [][2]string {
	return [][2]string{
		{StepSet, s.Set},
		{StepPush, s.Push},
		{StepGet, s.Get},
		{StepRoute, s.Route},
		{StepUnroute, s.Unroute},
		{StepTouch, s.Touch},
	}
}

// String renders the step for error messages, e.g. "set A.a=10".
func (s Step) String() string {
	op, path := s.Op()
	switch op {
	case StepSet, StepPush:
		return fmt.Sprintf("%s %s=%s", op, path, s.Value)
	case StepRoute, StepUnroute:
		return fmt.Sprintf("%s %s -> %s", op, path, s.To)
	}
	return op + " " + path
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": field has the expected text value after the pass
	// - "recompute_count": field recomputed exactly Count times
	// - "event_count": events of Kind (optionally on Field) occurred Count times
	// - "event_order": Events ("kind Node.field") appear in this order
	Type string `yaml:"type"`

	// Field is the field path (value, recompute_count, optional for event_count).
	Field string `yaml:"field,omitempty"`

	// Kind is the event kind (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Expect is the expected text value (value).
	Expect *string `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (event_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertValue          = "value"
	AssertRecomputeCount = "recompute_count"
	AssertEventCount     = "event_count"
	AssertEventOrder     = "event_order"
)

var eventKinds = map[string]bool{
	ir.EventSet:       true,
	ir.EventNotify:    true,
	ir.EventRecompute: true,
	ir.EventRoute:     true,
	ir.EventUnroute:   true,
	ir.EventWrite:     true,
	ir.EventError:     true,
}

// LoadScenario reads and parses a scenario YAML file.
// The scene path is resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the scene path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the scene path BEFORE validation
	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) && basePath != "" {
		scenario.Scene = filepath.Join(basePath, scenario.Scene)
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

	if s.Scene == "" {
		return fmt.Errorf("scene is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Scene); os.IsNotExist(err) {
		return fmt.Errorf("scene file not found: %s", s.Scene)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks a step names exactly one operation and carries the
// arguments that operation needs.
func validateStep(index int, step Step) error {
	var names []string
	for _, c := range step.ops() {
		if c[1] != "" {
			names = append(names, c[0])
		}
	}
	switch len(names) {
	case 0:
		return fmt.Errorf("steps[%d]: one of set, push, get, route, unroute, touch is required", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: only one operation allowed, found %s", index, strings.Join(names, ", "))
	}

	op, _ := step.Op()
	switch op {
	case StepRoute, StepUnroute:
		if step.To == "" {
			return fmt.Errorf("steps[%d]: to is required for %s", index, op)
		}
	case StepGet:
	default:
		if step.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is only valid for get", index)
		}
	}
	if step.Expect != nil && step.ExpectError != "" {
		return fmt.Errorf("steps[%d]: expect and expect_error are mutually exclusive", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertValue:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for value", index)
		}
	case AssertRecomputeCount:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for recompute_count", index)
		}
	case AssertEventCount:
		if !eventKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown event kind %q for event_count", index, a.Kind)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
		for j, ev := range a.Events {
			if _, _, err := parseEventRef(ev); err != nil {
				return fmt.Errorf("assertions[%d].events[%d]: %w", index, j, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// parseEventRef splits "recompute Sum.out" into kind and field.
func parseEventRef(s string) (kind, field string, err error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("event %q must be \"<kind> <Node.field>\"", s)
	}
	if !eventKinds[parts[0]] {
		return "", "", fmt.Errorf("unknown event kind %q", parts[0])
	}
	return parts[0], parts[1], nil
}
