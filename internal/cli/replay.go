package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/engine"
	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Pass     string // optional - specific pass only
}

// ReplayPassResult holds the replay result for a single pass.
type ReplayPassResult struct {
	PassToken     string `json:"pass_token"`
	Scene         string `json:"scene"`
	Writes        int    `json:"writes"`
	Hash          string `json:"hash"`
	RecordedHash  string `json:"recorded_hash,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Reason        string `json:"reason,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Passes           []ReplayPassResult `json:"passes"`
	TotalPasses      int                `json:"total_passes"`
	AllDeterministic bool               `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenes-dir>",
		Short: "Replay recorded passes and verify determinism",
		Long: `Replay the recorded writes of each pass against its scene and verify
that evaluation is deterministic.

Each pass is replayed twice from a freshly built scene. Both replays must
end in the same snapshot, and when the pass has a recorded snapshot the
replays must match it. The scene in the directory must have the hash the
pass was recorded with.

Exit codes:
  0 - All passes are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  fieldnet replay ./scenes --db ./trace.db
  fieldnet replay ./scenes --db ./trace.db --pass 0190f3c2-...
  fieldnet replay ./scenes --db ./trace.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "replay specific pass only")

	return cmd
}

func runReplay(opts *ReplayOptions, scenesDir string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openTrace(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	loadResult, loadErrors := LoadScenes(scenesDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load scenes", loadErrors[0])
	}

	var passes []ir.Pass
	if opts.Pass != "" {
		p, err := st.ReadPass(ctx, opts.Pass)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: pass not found: %s", ErrCodeStore, opts.Pass))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read pass", err)
		}
		passes = []ir.Pass{p}
	} else {
		passes, err = st.ListPasses(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list passes", err)
		}
	}

	result := ReplayResult{
		Passes:           make([]ReplayPassResult, 0, len(passes)),
		TotalPasses:      len(passes),
		AllDeterministic: true,
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	for _, p := range passes {
		passResult, err := replayAndVerifyPass(ctx, st, loadResult, p, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay pass %s", p.Token), err)
		}
		result.Passes = append(result.Passes, passResult)
		if !passResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(newPrinter(opts.RootOptions, cmd), result)
	}
	return outputReplayText(cmd.OutOrStdout(), result, opts.Verbose)
}

// replayAndVerifyPass replays one pass twice and compares the resulting
// snapshots with each other and with the recorded one.
func replayAndVerifyPass(ctx context.Context, st *store.Store, scenes *LoadResult, p ir.Pass, logger *slog.Logger) (ReplayPassResult, error) {
	result := ReplayPassResult{PassToken: p.Token, Scene: p.Scene}

	spec, err := scenes.Scene(p.Scene)
	if err != nil {
		result.Reason = fmt.Sprintf("scene %s not found", p.Scene)
		return result, nil
	}
	var versionErr *ir.VersionError
	if err := st.CheckReplayable(ctx, p.Token); errors.As(err, &versionErr) {
		result.Reason = err.Error()
		return result, nil
	} else if err != nil {
		return result, err
	}
	hash, err := ir.SceneHash(spec)
	if err != nil {
		return result, err
	}
	if hash != p.SceneHash {
		result.Reason = fmt.Sprintf("scene %s changed since the pass was recorded", p.Scene)
		return result, nil
	}

	events, err := st.ReadEvents(ctx, p.Token)
	if err != nil {
		return result, err
	}
	for _, e := range events {
		if e.Kind == ir.EventWrite {
			result.Writes++
		}
	}

	first, err := replaySnapshot(ctx, spec, events, logger)
	if err != nil {
		return result, fmt.Errorf("first replay failed: %w", err)
	}
	second, err := replaySnapshot(ctx, spec, events, logger)
	if err != nil {
		return result, fmt.Errorf("second replay failed: %w", err)
	}
	result.Hash = first.Hash

	if first.Hash != second.Hash {
		result.Reason = "replays ended in different snapshots"
		return result, nil
	}

	recorded, err := st.ReadSnapshot(ctx, p.Token)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return result, err
	default:
		result.RecordedHash = recorded.Hash
		if recorded.Hash != first.Hash {
			result.Reason = "replay does not match the recorded snapshot"
			return result, nil
		}
	}

	result.Deterministic = true
	return result, nil
}

func replaySnapshot(ctx context.Context, spec ir.SceneSpec, events []ir.Event, logger *slog.Logger) (ir.Snapshot, error) {
	scene, err := engine.Build(spec, engine.WithLogger(logger))
	if err != nil {
		return ir.Snapshot{}, err
	}
	// Settle initial evaluation outside the pass, as recording does.
	if _, err := scene.Snapshot(); err != nil {
		return ir.Snapshot{}, err
	}
	if err := scene.ReplayWrites(ctx, events); err != nil {
		return ir.Snapshot{}, err
	}
	return scene.Snapshot()
}

// outputReplayJSON prints the result. The error names the first pass that
// did not replay deterministically.
func outputReplayJSON(pr *printer, result ReplayResult) error {
	resp := Response{Data: result}
	if !result.AllDeterministic {
		resp.Error = &ResponseError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
		for _, p := range result.Passes {
			if !p.Deterministic {
				resp.Scene, resp.Pass = p.Scene, p.PassToken
				resp.Error.Details = p.Reason
				break
			}
		}
	}
	return pr.respond(resp, ExitFailure)
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalPasses == 0 {
		fmt.Fprintln(w, "No passes found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d pass(es)\n", result.TotalPasses)
	fmt.Fprintln(w)

	for _, p := range result.Passes {
		status := "✓"
		if !p.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Pass: %s (%s)\n", status, p.PassToken, p.Scene)
		fmt.Fprintf(w, "  Writes: %d\n", p.Writes)
		if verbose {
			fmt.Fprintf(w, "  Snapshot: %s\n", p.Hash)
			if p.RecordedHash != "" {
				fmt.Fprintf(w, "  Recorded: %s\n", p.RecordedHash)
			}
		}
		if p.Reason != "" {
			fmt.Fprintf(w, "  Warning: %s\n", p.Reason)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All passes verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
