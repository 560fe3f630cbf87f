package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Pass     string
	Field    string // optional - filter to one field
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Pass   ir.Pass    `json:"pass"`
	Events []ir.Event `json:"events"`
	Stats  TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the trace. Counts cover the whole
// pass, not only the filtered events.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Writes      int `json:"writes"`
	Errors      int `json:"errors"`
	Notifies    int `json:"notifies"`
	Recomputes  int `json:"recomputes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded events of a pass",
		Long: `Show the events recorded for an evaluation pass, in seq order.

Each write is followed by the field events it caused: the set on the
written field, notifications along its routes, and the recomputes that
happened when fields were read. Without --pass, the stored passes are
listed.

Examples:
  fieldnet trace --db ./trace.db
  fieldnet trace --db ./trace.db --pass 0190f3c2-...
  fieldnet trace --db ./trace.db --pass p1 --field Sum.out --kind recompute`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "pass token to trace")
	cmd.Flags().StringVar(&opts.Field, "field", "", "filter to events on this field")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to events of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openTrace(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Pass == "" {
		return listPasses(ctx, st, newPrinter(opts.RootOptions, cmd))
	}

	pass, err := st.ReadPass(ctx, opts.Pass)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: pass not found: %s", ErrCodeStore, opts.Pass))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pass", err)
	}

	events, err := st.ReadEvents(ctx, opts.Pass)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Pass:   pass,
		Events: filterEvents(events, opts.Field, opts.Kind),
		Stats:  traceStats(events),
	}

	if opts.Format == "json" {
		return newPrinter(opts.RootOptions, cmd).respond(Response{Scene: pass.Scene, Pass: pass.Token, Data: result}, ExitSuccess)
	}
	return outputTraceText(cmd, result)
}

// openTrace opens a trace database that must already exist.
func openTrace(path string) (*store.Store, error) {
	st, err := store.OpenTrace(path)
	if errors.Is(err, store.ErrNoTrace) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: database not found: %s", ErrCodeStore, path), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// filterEvents keeps the events on field and of kind. Empty filters match
// everything.
func filterEvents(events []ir.Event, field, kind string) []ir.Event {
	out := make([]ir.Event, 0, len(events))
	for _, e := range events {
		if field != "" && e.Field != field {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	return out
}

func traceStats(events []ir.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	for _, e := range events {
		switch e.Kind {
		case ir.EventWrite:
			stats.Writes++
		case ir.EventError:
			stats.Errors++
		case ir.EventNotify:
			stats.Notifies++
		case ir.EventRecompute:
			stats.Recomputes++
		}
	}
	return stats
}

// listPasses prints every stored pass.
func listPasses(ctx context.Context, st *store.Store, pr *printer) error {
	passes, err := st.ListPasses(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list passes", err)
	}

	if pr.json {
		return pr.respond(Response{Data: passes}, ExitSuccess)
	}

	if len(passes) == 0 {
		fmt.Fprintln(pr.out, "No passes found in database.")
		return nil
	}
	fmt.Fprintf(pr.out, "%d pass(es):\n", len(passes))
	for _, p := range passes {
		fmt.Fprintf(pr.out, "  %s  %s  @%d\n", p.Token, p.Scene, p.StartedSeq)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Pass: %s\n", result.Pass.Token)
	fmt.Fprintf(w, "Scene: %s (%s)\n", result.Pass.Scene, truncateID(result.Pass.SceneHash))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Events {
		fmt.Fprintf(w, "  %s\n", formatTraceEvent(e))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Writes:       %d\n", result.Stats.Writes)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)
	fmt.Fprintf(w, "  Notifies:     %d\n", result.Stats.Notifies)
	fmt.Fprintf(w, "  Recomputes:   %d\n", result.Stats.Recomputes)

	return nil
}
