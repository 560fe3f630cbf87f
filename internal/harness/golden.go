package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fieldnet/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string             `json:"scenario_name"`
	PassToken    string             `json:"pass_token,omitempty"`
	Trace        []ir.Event         `json:"trace"`
	State        []ir.SnapshotEntry `json:"state"`
}

// toCanonical converts a TraceSnapshot to an IR object for canonical JSON
// serialization. Empty event members are omitted, and the pass token is
// written once rather than on every event.
func (s *TraceSnapshot) toCanonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"seq":   ir.IRInt(event.Seq),
			"kind":  ir.IRString(event.Kind),
			"field": ir.IRString(event.Field),
		}
		optional := map[string]string{
			"source": event.Source,
			"value":  event.Value,
			"op":     event.Op,
			"caller": event.Caller,
		}
		for k, v := range optional {
			if v != "" {
				obj[k] = ir.IRString(v)
			}
		}
		trace[i] = obj
	}

	state := make(ir.IRArray, len(s.State))
	for i, e := range s.State {
		state[i] = ir.IRObject{
			"field": ir.IRString(e.Field),
			"value": ir.IRString(e.Value),
		}
	}

	result := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
		"state":         state,
	}
	if s.PassToken != "" {
		result["pass_token"] = ir.IRString(s.PassToken)
	}
	return result
}

// MarshalTrace renders a result's trace and final state as canonical JSON,
// the format golden files are stored in.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		PassToken:    result.PassToken,
		Trace:        result.Trace,
		State:        result.State.Entries,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
