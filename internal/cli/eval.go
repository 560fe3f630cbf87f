package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/compiler"
	"github.com/roach88/fieldnet/internal/engine"
	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Scene    string
	Sets     []string // "Node.field=value", applied in order
	Gets     []string // "Node.field"
	Caller   string
	Database string
	Pass     string // fixed pass token; UUIDv7 when empty

	// PassGenerator overrides the pass token generator (for testing).
	PassGenerator engine.PassTokenGenerator
}

// EvalWrite is the outcome of one --set.
type EvalWrite struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// EvalRead is the outcome of one --get.
type EvalRead struct {
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// EvalResult holds the outcome of an eval pass.
type EvalResult struct {
	Scene        string      `json:"scene"`
	PassToken    string      `json:"pass_token"`
	Writes       []EvalWrite `json:"writes"`
	Reads        []EvalRead  `json:"reads"`
	SnapshotHash string      `json:"snapshot_hash"`
	Recorded     bool        `json:"recorded"`
}

func (r *EvalResult) failed() int {
	n := 0
	for _, w := range r.Writes {
		if w.Code != "" {
			n++
		}
	}
	for _, g := range r.Reads {
		if g.Code != "" {
			n++
		}
	}
	return n
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <scenes-dir>",
		Short: "Evaluate one pass over a scene",
		Long: `Build a scene, apply writes in one evaluation pass and read fields back.

Writes are applied in the order given. A failed write is reported and the
remaining writes still run. With --db, the pass, its events and the final
snapshot are recorded in the trace store.

Exit codes:
  0 - Every write and read succeeded
  1 - One or more writes or reads failed
  2 - Command error (invalid scene, database error, etc.)

Examples:
  fieldnet eval ./scenes --scene Adder --set A.a=10 --get Sum.out
  fieldnet eval ./scenes --set A.a=10 --set B.b=5 --get Copy.v --db ./trace.db
  fieldnet eval ./scenes --scene Adder --caller Sum --set Sum.out=1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scene to evaluate (optional when the directory declares one scene)")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "write Node.field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Gets, "get", nil, "read Node.field after the writes (repeatable)")
	cmd.Flags().StringVar(&opts.Caller, "caller", engine.UserName, "writing entity: @user or a node name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the pass in this SQLite database")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "fixed pass token")

	return cmd
}

func runEval(opts *EvalOptions, scenesDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	writes, err := parseSets(opts.Sets)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	spec, err := loadScene(scenesDir, opts.Scene)
	if err != nil {
		return err
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	sceneOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPassGenerator(passGenerator(opts.PassGenerator, opts.Pass)),
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		clock, err := engine.ResumeClock(ctx, st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace store", err)
		}
		sceneOpts = append(sceneOpts, engine.WithRecorder(st), engine.WithClock(clock))
	}

	scene, err := engine.Build(spec, sceneOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build scene", err)
	}
	caller, err := scene.Caller(opts.Caller)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --caller", err)
	}

	// Settle initial evaluation outside the pass.
	if _, err := scene.Snapshot(); err != nil {
		return WrapExitError(ExitCommandError, "failed to evaluate scene", err)
	}

	pass, err := scene.BeginPass(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to begin pass", err)
	}

	result := EvalResult{
		Scene:     spec.Name,
		PassToken: pass.Token,
		Writes:    make([]EvalWrite, 0, len(writes)),
		Reads:     make([]EvalRead, 0, len(opts.Gets)),
		Recorded:  st != nil,
	}
	for _, w := range writes {
		w.Caller = caller
		out := EvalWrite{Field: w.Path, Value: w.Text}
		if err := scene.Apply(w); err != nil {
			out.Code = engine.ErrorCode(err)
			out.Error = err.Error()
		}
		result.Writes = append(result.Writes, out)
	}
	for _, path := range opts.Gets {
		out := EvalRead{Field: path}
		v, err := scene.Get(path, caller)
		if err != nil {
			out.Code = engine.ErrorCode(err)
			out.Error = err.Error()
		} else {
			out.Value = v
		}
		result.Reads = append(result.Reads, out)
	}
	scene.EndPass()

	snap, err := scene.Snapshot()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to snapshot scene", err)
	}
	result.SnapshotHash = snap.Hash
	if st != nil {
		if err := st.WriteSnapshot(ctx, pass.Token, snap); err != nil {
			return WrapExitError(ExitCommandError, "failed to record snapshot", err)
		}
	}

	if opts.Format == "json" {
		return outputEvalJSON(newPrinter(opts.RootOptions, cmd), result)
	}
	return outputEvalText(cmd, result)
}

// loadScene loads scenesDir and returns the named scene, validated.
func loadScene(scenesDir, name string) (ir.SceneSpec, error) {
	loadResult, loadErrors := LoadScenes(scenesDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return ir.SceneSpec{}, WrapExitError(ExitCommandError, "failed to load scenes", loadErrors[0])
	}
	spec, err := loadResult.Scene(name)
	if err != nil {
		return ir.SceneSpec{}, WrapExitError(ExitCommandError, "failed to select scene", err)
	}
	if errs := compiler.Validate(&spec); len(errs) > 0 {
		return ir.SceneSpec{}, NewExitError(ExitCommandError,
			fmt.Sprintf("scene %s is invalid: %s: %s: %s", spec.Name, errs[0].Code, errs[0].Field, errs[0].Message))
	}
	return spec, nil
}

// passGenerator returns gen if set, a fixed generator for token if set, and
// UUIDv7 otherwise.
func passGenerator(gen engine.PassTokenGenerator, token string) engine.PassTokenGenerator {
	switch {
	case gen != nil:
		return gen
	case token != "":
		return engine.NewFixedGenerator(token)
	default:
		return engine.UUIDv7Generator{}
	}
}

// parseSets parses "Node.field=value" arguments into set writes. The value
// is everything after the first '=' and may be empty.
func parseSets(args []string) ([]engine.Write, error) {
	writes := make([]engine.Write, 0, len(args))
	for _, arg := range args {
		path, text, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected Node.field=value", arg)
		}
		if _, err := ir.ParseFieldRef(path); err != nil {
			return nil, err
		}
		writes = append(writes, engine.Write{Op: engine.OpSet, Path: path, Text: text})
	}
	return writes, nil
}

// outputEvalJSON prints the result. The error, if any, is the first
// failed write or read.
func outputEvalJSON(pr *printer, result EvalResult) error {
	resp := Response{Scene: result.Scene, Pass: result.PassToken, Data: result}
	if failed := result.failed(); failed > 0 {
		resp.Error = &ResponseError{
			Code:    "E_EVAL_FAILED",
			Message: fmt.Sprintf("%d write(s) or read(s) failed", failed),
		}
		for _, w := range result.Writes {
			if w.Code != "" {
				resp.Error.Field, resp.Error.Details = w.Field, w.Code
				break
			}
		}
		if resp.Error.Field == "" {
			for _, g := range result.Reads {
				if g.Code != "" {
					resp.Error.Field, resp.Error.Details = g.Field, g.Code
					break
				}
			}
		}
	}
	return pr.respond(resp, ExitFailure)
}

func outputEvalText(cmd *cobra.Command, result EvalResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Scene: %s\n", result.Scene)
	fmt.Fprintf(w, "Pass:  %s\n", result.PassToken)
	fmt.Fprintln(w)

	for _, wr := range result.Writes {
		if wr.Code != "" {
			fmt.Fprintf(w, "✗ set %s=%s\n  %s\n", wr.Field, wr.Value, wr.Error)
			continue
		}
		fmt.Fprintf(w, "✓ set %s=%s\n", wr.Field, wr.Value)
	}
	for _, rd := range result.Reads {
		if rd.Code != "" {
			fmt.Fprintf(w, "✗ get %s\n  %s\n", rd.Field, rd.Error)
			continue
		}
		fmt.Fprintf(w, "%s = %s\n", rd.Field, rd.Value)
	}

	if result.Recorded {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Recorded pass %s (snapshot %s)\n", result.PassToken, truncateID(result.SnapshotHash))
	}

	if failed := result.failed(); failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d write(s) or read(s) failed", failed))
	}
	return nil
}
