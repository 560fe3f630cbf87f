package harness

import "github.com/roach88/fieldnet/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// PassToken is the token of the evaluation pass the steps ran in.
	PassToken string `json:"pass_token"`

	// Trace contains every event recorded during the pass, in seq order.
	// Read back from the store, so it is exactly what was persisted.
	Trace []ir.Event `json:"trace"`

	// Errors contains step and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the snapshot taken after the pass closed.
	State ir.Snapshot `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Value returns the snapshot value of a field.
func (r *Result) Value(path string) (string, bool) {
	for _, e := range r.State.Entries {
		if e.Field == path {
			return e.Value, true
		}
	}
	return "", false
}
