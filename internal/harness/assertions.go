package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(event))
		}
	}

	return buf.String()
}

// formatEvent renders one trace line, e.g. "[5] recompute Sum.out <- A.a = 12".
func formatEvent(e ir.Event) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "[%d] %s", e.Seq, e.Kind)
	if e.Op != "" {
		fmt.Fprintf(&buf, " %s", e.Op)
	}
	fmt.Fprintf(&buf, " %s", e.Field)
	if e.Source != "" {
		fmt.Fprintf(&buf, " <- %s", e.Source)
	}
	if e.Value != "" {
		fmt.Fprintf(&buf, " = %s", e.Value)
	}
	if e.Caller != "" {
		fmt.Fprintf(&buf, " by %s", e.Caller)
	}
	return buf.String()
}

// assertValue checks the snapshot value of a field after the pass.
func assertValue(result *Result, assertion Assertion) error {
	got, ok := result.Value(assertion.Field)
	if !ok {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %q", assertion.Field, *assertion.Expect),
			Actual:   "field not in snapshot",
		}
	}
	if got != *assertion.Expect {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %q", assertion.Field, *assertion.Expect),
			Actual:   fmt.Sprintf("%s = %q", assertion.Field, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertStoredCount checks how many events of kind on field (every field if
// empty) the store holds for the pass.
func assertStoredCount(actx *AssertionContext, result *Result, typ, kind, fieldPath string, want int) error {
	got, err := actx.Store.CountEvents(actx.Ctx, actx.PassToken, kind, fieldPath)
	if err != nil {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("count %s events", kind),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if got != want {
		target := "all fields"
		if fieldPath != "" {
			target = fieldPath
		}
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%d %s events on %s", want, kind, target),
			Actual:   fmt.Sprintf("%d events", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertEventOrder(trace []ir.Event, assertion Assertion) error {
	// Step 1: Find first position of each expected event
	positions := make(map[string]int)
	for i, event := range trace {
		key := event.Kind + " " + event.Field
		if positions[key] == 0 {
			positions[key] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all events found
	for _, ref := range assertion.Events {
		kind, field, _ := parseEventRef(ref)
		if positions[kind+" "+field] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", ref),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Events); i++ {
		pk, pf, _ := parseEventRef(assertion.Events[i-1])
		ck, cf, _ := parseEventRef(assertion.Events[i])
		prev, curr := positions[pk+" "+pf], positions[ck+" "+cf]

		if prev >= curr {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					assertion.Events[i-1], prev, assertion.Events[i], curr),
				Trace: trace,
			}
		}
	}

	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store     *store.Store
	Ctx       context.Context
	PassToken string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertValue:
			err = assertValue(result, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertRecomputeCount, AssertEventCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			kind := assertion.Kind
			if assertion.Type == AssertRecomputeCount {
				kind = ir.EventRecompute
			}
			err = assertStoredCount(actx, result, assertion.Type, kind, assertion.Field, assertion.Count)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
