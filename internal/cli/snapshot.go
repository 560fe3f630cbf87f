package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Database string
	Pass     string
	Scene    string
}

// SnapshotResult is a stored snapshot and the pass it closed.
type SnapshotResult struct {
	PassToken string      `json:"pass_token"`
	Snapshot  ir.Snapshot `json:"snapshot"`
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show a recorded scene snapshot",
		Long: `Show the field values recorded at the end of a pass.

With --pass, the snapshot of that pass is shown. With --scene, the most
recent recorded snapshot of that scene is shown.

Examples:
  fieldnet snapshot --db ./trace.db --scene Adder
  fieldnet snapshot --db ./trace.db --pass 0190f3c2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "pass token")
	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scene name (latest snapshot)")
	cmd.MarkFlagsMutuallyExclusive("pass", "scene")
	cmd.MarkFlagsOneRequired("pass", "scene")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openTrace(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		token = opts.Pass
		snap  ir.Snapshot
	)
	if token == "" {
		token, snap, err = st.LatestSnapshot(ctx, opts.Scene)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: no snapshot recorded for scene %s", ErrCodeStore, opts.Scene))
		}
	} else {
		snap, err = st.ReadSnapshot(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: no snapshot for pass %s", ErrCodeStore, token))
		}
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	result := SnapshotResult{PassToken: token, Snapshot: snap}
	if opts.Format == "json" {
		return newPrinter(opts.RootOptions, cmd).respond(Response{Scene: snap.Scene, Pass: token, Data: result}, ExitSuccess)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Snapshot of %s after pass %s\n\n", snap.Scene, token)
	writeSnapshotText(w, snap)
	return nil
}
