package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/ir"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // failed writes or reads, failing scenarios, invalid scenes, nondeterministic replay
	ExitCommandError = 2 // bad arguments, missing scenes or trace database
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON document every command prints with --format json.
// Scene and Pass name the scene and pass the payload is about.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Scene  string         `json:"scene,omitempty"`
	Pass   string         `json:"pass,omitempty"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the first failure of a command. Code is either a CLI
// code (E001...) or a field/engine error code. Field is the field path the
// failure is about, if any.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// printer writes the output of one command: text or a Response on stdout,
// diagnostics on stderr.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
	diag    io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *printer {
	return &printer{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

// respond prints r as JSON. An error response becomes an ExitError with
// exit code.
func (p *printer) respond(r Response, exit int) error {
	if r.Status == "" {
		r.Status = "ok"
		if r.Error != nil {
			r.Status = "error"
		}
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err
	}
	if r.Error != nil {
		return NewExitError(exit, r.Error.Message)
	}
	return nil
}

// fail reports a command that stopped before producing a result.
func (p *printer) fail(exit int, e ResponseError) error {
	if p.json {
		_ = p.respond(Response{Error: &e}, exit)
	} else {
		fmt.Fprintf(p.out, "Error [%s]: %s\n", e.Code, e.Message)
		if p.verbose && e.Details != nil {
			fmt.Fprintf(p.out, "Details: %v\n", e.Details)
		}
	}
	return NewExitError(exit, fmt.Sprintf("%s: %s", e.Code, e.Message))
}

// debugf writes a progress line to stderr with --verbose.
func (p *printer) debugf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}

// newLogger returns the engine logger for a command: warnings only, or
// everything down to debug with --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// writeSnapshotText prints the entries of snap, one field per line, and
// its hash.
func writeSnapshotText(w io.Writer, snap ir.Snapshot) {
	width := 0
	for _, e := range snap.Entries {
		width = max(width, len(e.Field))
	}
	for _, e := range snap.Entries {
		fmt.Fprintf(w, "  %-*s = %s\n", width, e.Field, e.Value)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Hash: %s\n", snap.Hash)
}

// formatTraceEvent renders one event on a line:
//
//	[1] write set A.a = 10 by @user
//	[3] notify Sum.out <- A.a
//	[5] recompute Sum.out <- A.a = 12
func formatTraceEvent(e ir.Event) string {
	s := fmt.Sprintf("[%d] %s", e.Seq, e.Kind)
	if e.Op != "" {
		s += " " + e.Op
	}
	s += " " + e.Field
	if e.Source != "" {
		s += " <- " + e.Source
	}
	switch {
	case e.Kind == ir.EventError:
		s += ": " + e.Value
	case e.Op == "route" || e.Op == "unroute":
		s += " -> " + e.Value
	case e.Value != "":
		s += " = " + e.Value
	}
	if e.Caller != "" {
		s += " by " + e.Caller
	}
	return s
}

// truncateID shortens a hash or token for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
