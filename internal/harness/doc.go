// Package harness provides conformance testing for fieldnet scenes.
//
// A scenario builds a scene from a CUE file, applies writes and reads to it
// inside one evaluation pass, and checks the recorded trace and final field
// values. The scene is the real engine.Scene, recording into an in-memory
// store, so the trace under test is the trace the engine persisted.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: adder_propagation
//	description: "Writes to an input propagate through a computed field"
//	scene: ../scenes/adder.cue
//	pass_token: adder-pass-1
//	steps:
//	  - set: A.a
//	    value: "10"
//	    caller: "@user"
//	  - get: Copy.v
//	    expect: "12"
//	  - set: Sum.out
//	    value: "1"
//	    caller: "@user"
//	    expect_error: ACCESS_VIOLATION
//	assertions:
//	  - type: value
//	    field: Sum.out
//	    expect: "12"
//	  - type: recompute_count
//	    field: Sum.out
//	    count: 1
//
// Step callers are node names, "@user" for the scene's external user, or
// empty for a trusted internal caller.
//
// # Assertion Types
//
//   - value: the field's text value in the snapshot taken after the pass
//   - recompute_count: number of recompute events on a field
//   - event_count: number of events of a kind, on one field or all fields
//   - event_order: "kind Node.field" events appear in the given order
//
// # Deterministic Testing
//
// The harness uses:
//   - Fixed pass tokens (from scenario.pass_token or testutil.DefaultPassToken)
//   - Deterministic logical clock (testutil.DeterministicClock)
//   - In-memory SQLite database (isolated per run)
//
// Before the pass opens the scene is settled: every field is brought up to
// date, so the trace starts with the first step. This keeps traces
// identical across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/adder.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
