package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/engine"
	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Scene      string
	Script     string // write script path, "-" for stdin
	Caller     string
	Database   string
	Batch      int // writes per pass, 0 for unlimited
	CycleCheck bool

	// PassGenerator overrides the pass token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	PassGenerator engine.PassTokenGenerator
}

// RunResult holds the outcome of a scripted run.
type RunResult struct {
	Scene    string      `json:"scene"`
	Writes   int         `json:"writes"`
	Passes   []string    `json:"passes"`
	Snapshot ir.Snapshot `json:"snapshot"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenes-dir>",
		Short: "Run a write script through the scene loop",
		Long: `Run a scene's write loop and feed it a script of writes.

The script is posted to the scene's inbox and the loop drains it, one
evaluation pass per batch. When the inbox is empty the loop stops and the
final snapshot is printed. With --db, the passes are recorded and the
final snapshot is stored under the last pass.

Script lines (blank lines and # comments are ignored):
  set Node.field value
  push Node.field element
  route Node.field Node.field
  unroute Node.field Node.field
  touch Node.field

Examples:
  fieldnet run ./scenes --scene Adder --script writes.txt
  fieldnet run ./scenes --script - --db ./trace.db < writes.txt
  fieldnet run ./scenes --script writes.txt --batch 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScene(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scene to run (optional when the directory declares one scene)")
	cmd.Flags().StringVar(&opts.Script, "script", "", "write script, - for stdin (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Caller, "caller", engine.UserName, "writing entity: @user or a node name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record passes in this SQLite database")
	cmd.Flags().IntVar(&opts.Batch, "batch", 0, "maximum writes per pass (0 = unlimited)")
	cmd.MarkFlagsMutuallyExclusive("batch", "db")
	cmd.Flags().BoolVar(&opts.CycleCheck, "cycle-check", false, "reject routes that close a cycle")

	return cmd
}

func runScene(opts *RunOptions, scenesDir string, cmd *cobra.Command) error {
	script, err := readScript(opts.Script, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	writes, err := ParseScript(script)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid script", err)
	}

	spec, err := loadScene(scenesDir, opts.Scene)
	if err != nil {
		return err
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	tokens := &tokenLog{gen: opts.PassGenerator}
	if tokens.gen == nil {
		tokens.gen = engine.UUIDv7Generator{}
	}
	sceneOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPassGenerator(tokens),
	}
	if opts.Batch > 0 {
		sceneOpts = append(sceneOpts, engine.WithMaxWritesPerPass(opts.Batch))
	}
	if opts.CycleCheck {
		sceneOpts = append(sceneOpts, engine.WithCycleCheck())
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		clock, err := engine.ResumeClock(context.Background(), st)
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

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Settle initial evaluation outside any pass, then queue the whole
	// script before the loop starts so that, without --batch, it is
	// applied as a single pass.
	if _, err := scene.Snapshot(); err != nil {
		return WrapExitError(ExitCommandError, "failed to evaluate scene", err)
	}
	for _, w := range writes {
		w.Caller = caller
		if err := scene.Post(w); err != nil {
			return WrapExitError(ExitCommandError, "failed to post write", err)
		}
	}
	scene.Stop()

	if err := scene.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "scene loop error", err)
	}

	snap, err := scene.Snapshot()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to snapshot scene", err)
	}
	passes := tokens.all()
	if st != nil && len(passes) > 0 {
		if err := st.WriteSnapshot(context.Background(), passes[len(passes)-1], snap); err != nil {
			return WrapExitError(ExitCommandError, "failed to record snapshot", err)
		}
	}

	result := RunResult{
		Scene:    spec.Name,
		Writes:   len(writes),
		Passes:   passes,
		Snapshot: snap,
	}
	if opts.Format == "json" {
		resp := Response{Scene: result.Scene, Data: result}
		if len(passes) > 0 {
			resp.Pass = passes[len(passes)-1]
		}
		return newPrinter(opts.RootOptions, cmd).respond(resp, ExitSuccess)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scene %s: %d write(s) in %d pass(es)\n\n", result.Scene, result.Writes, len(result.Passes))
	writeSnapshotText(w, snap)
	return nil
}

// tokenLog remembers the pass tokens it hands out.
type tokenLog struct {
	gen    engine.PassTokenGenerator
	mu     sync.Mutex
	tokens []string
}

func (t *tokenLog) Generate() string {
	token := t.gen.Generate()
	t.mu.Lock()
	t.tokens = append(t.tokens, token)
	t.mu.Unlock()
	return token
}

func (t *tokenLog) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.tokens...)
}

func readScript(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// ParseScript parses a write script. Each line is an operation followed by
// a field path and, depending on the operation, a value or a destination
// path. Writes carry no caller.
func ParseScript(script string) ([]engine.Write, error) {
	var writes []engine.Write
	scanner := bufio.NewScanner(strings.NewReader(script))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		op, rest, _ := strings.Cut(text, " ")
		path, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
		arg = strings.TrimSpace(arg)
		if _, err := ir.ParseFieldRef(path); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		w := engine.Write{Op: engine.Op(op), Path: path}
		switch w.Op {
		case engine.OpSet, engine.OpPush:
			w.Text = arg
		case engine.OpRoute, engine.OpUnroute:
			if _, err := ir.ParseFieldRef(arg); err != nil {
				return nil, fmt.Errorf("line %d: %s needs a destination: %w", line, op, err)
			}
			w.Target = arg
		case engine.OpTouch:
			if arg != "" {
				return nil, fmt.Errorf("line %d: touch takes no value", line)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown operation %q", line, op)
		}
		writes = append(writes, w)
	}
	return writes, scanner.Err()
}
