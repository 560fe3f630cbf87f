package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/fieldnet/internal/compiler"
	"github.com/roach88/fieldnet/internal/engine"
	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
	"github.com/roach88/fieldnet/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a freshly built scene with a deterministic
// clock and pass token, recording into an isolated store.
type Harness struct {
	store   *store.Store
	scene   *engine.Scene
	clock   *testutil.DeterministicClock
	passGen *testutil.FixedPassGenerator
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile and validate the scene file
// 2. Build the scene recording into the store, then settle it
// 3. Apply the steps inside one pass, checking step expectations
// 4. Snapshot the scene and persist the snapshot
// 5. Read the trace back and evaluate assertions
//
// An error is returned only when the scenario cannot run at all. Failed
// expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	spec, err := LoadSceneSpec(scenario.Scene, scenario.SceneName)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		clock:   testutil.NewDeterministicClock(),
		passGen: testutil.NewFixedPassGenerator(scenario.PassToken),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	opts := []engine.Option{
		engine.WithRecorder(st),
		engine.WithClock(h.clock),
		engine.WithPassGenerator(h.passGen),
		engine.WithLogger(h.logger),
	}
	if scenario.CycleCheck {
		opts = append(opts, engine.WithCycleCheck())
	}
	h.scene, err = engine.Build(*spec, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build scene %s: %w", spec.Name, err)
	}

	// Bring every field up to date so the pass records only what the steps
	// cause, not the first evaluation of the scene.
	if _, err := h.scene.Snapshot(); err != nil {
		return nil, fmt.Errorf("failed to settle scene: %w", err)
	}

	pass, err := h.scene.BeginPass(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin pass: %w", err)
	}

	result := NewResult()
	result.PassToken = pass.Token
	h.executeSteps(scenario.Steps, result)
	h.scene.EndPass()

	snap, err := h.scene.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot scene: %w", err)
	}
	if err := st.WriteSnapshot(ctx, pass.Token, snap); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	result.State = snap

	trace, err := st.ReadEvents(ctx, pass.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	if trace != nil {
		result.Trace = trace
	}

	actx := &AssertionContext{
		Store:     st,
		Ctx:       ctx,
		PassToken: pass.Token,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSteps applies each step and checks its expectation.
// A failing step does not stop the scenario.
func (h *Harness) executeSteps(steps []Step, result *Result) {
	for i, step := range steps {
		got, err := h.executeStep(step)
		label := fmt.Sprintf("steps[%d] %s", i, step)

		switch {
		case step.ExpectError != "":
			if err == nil {
				result.AddError(fmt.Sprintf("%s: expected error %s, got success", label, step.ExpectError))
			} else if code := engine.ErrorCode(err); code != step.ExpectError {
				result.AddError(fmt.Sprintf("%s: expected error %s, got %s (%v)", label, step.ExpectError, code, err))
			}
		case err != nil:
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, err))
		case step.Expect != nil && got != *step.Expect:
			result.AddError(fmt.Sprintf("%s: expected %q, got %q", label, *step.Expect, got))
		}

		h.logger.Info("step completed",
			"step", i,
			"op", label,
			"error", err,
		)
	}
}

// executeStep performs one step on behalf of its caller. Get returns the
// value read; every other operation goes through Scene.Apply so that it is
// recorded as a write.
func (h *Harness) executeStep(step Step) (string, error) {
	caller, err := h.scene.Caller(step.Caller)
	if err != nil {
		return "", err
	}

	op, path := step.Op()
	w := engine.Write{Path: path, Caller: caller}
	switch op {
	case StepGet:
		return h.scene.Get(path, caller)
	case StepSet:
		w.Op, w.Text = engine.OpSet, step.Value
	case StepPush:
		w.Op, w.Text = engine.OpPush, step.Value
	case StepRoute:
		w.Op, w.Target = engine.OpRoute, step.To
	case StepUnroute:
		w.Op, w.Target = engine.OpUnroute, step.To
	case StepTouch:
		w.Op = engine.OpTouch
	default:
		return "", fmt.Errorf("step has no operation")
	}
	return "", h.scene.Apply(w)
}

// LoadSceneSpec compiles the CUE file at path and returns the scene called
// name, or its only scene when name is empty. The scene must validate.
func LoadSceneSpec(path, name string) (*ir.SceneSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}

	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	specs, err := compiler.CompileScenes(v)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}

	spec, err := selectScene(specs, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, fmt.Errorf("scene %s is invalid: %w", spec.Name, errors.Join(errs...))
	}
	return spec, nil
}

func selectScene(specs []*ir.SceneSpec, name string) (*ir.SceneSpec, error) {
	if name == "" {
		if len(specs) != 1 {
			return nil, fmt.Errorf("expected exactly one scene, found %d (set scene_name)", len(specs))
		}
		return specs[0], nil
	}
	for _, s := range specs {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("scene %q not declared", name)
}
