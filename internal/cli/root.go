package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/ir"
)

// RootOptions holds the flags every command shares.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Command groups shown in help.
const (
	groupScenes = "scenes"
	groupEval   = "eval"
	groupTraces = "traces"
)

// NewRootCommand creates the fieldnet command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fieldnet",
		Short: "fieldnet - typed reactive field networks",
		Long: `Build scenes of typed fields connected by routes, evaluate writes
through them, and record every notification and recompute in a trace store.`,
		Version: "scene IR v" + ir.IRVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log scene evaluation to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddGroup(
		&cobra.Group{ID: groupScenes, Title: "Scene files:"},
		&cobra.Group{ID: groupEval, Title: "Evaluation:"},
		&cobra.Group{ID: groupTraces, Title: "Trace store:"},
	)
	add := func(group string, subs ...*cobra.Command) {
		for _, sub := range subs {
			sub.GroupID = group
			cmd.AddCommand(sub)
		}
	}
	add(groupScenes, NewCompileCommand(opts), NewValidateCommand(opts))
	add(groupEval, NewEvalCommand(opts), NewRunCommand(opts), NewTestCommand(opts))
	add(groupTraces, NewTraceCommand(opts), NewSnapshotCommand(opts), NewReplayCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
