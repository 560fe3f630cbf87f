package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Scenes   []string                   `json:"scenes,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenes-dir>",
		Short: "Validate scene files",
		Long: `Validate the CUE scene files of a directory.

Performs syntax checking and schema validation (field types, access types,
initial values, computes, route endpoints and route types). Route cycles are
reported as warnings: evaluation terminates on them, but the values a cyclic
scene settles on depend on read order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenesDir string, cmd *cobra.Command) error {
	pr := newPrinter(opts, cmd)

	loadResult, loadErrors := LoadScenes(scenesDir, LoadModeCollectAll)

	// Directory not found, no files and the like.
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return pr.fail(ExitCommandError, ResponseError{Code: code, Message: message})
	}

	pr.debugf("Found %d CUE file(s) in %s", loadResult.FileCount, scenesDir)

	result := validateAll(loadResult, pr)

	// Compile failures come back as load errors
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			result.Errors = append(result.Errors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    getLineFromCuePos(loadErr.Pos),
			})
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(pr, result)
	}

	if pr.json {
		return pr.respond(Response{Data: result}, ExitSuccess)
	}
	fmt.Fprintf(pr.out, "✓ All scenes valid (%d)\n", len(result.Scenes))
	for _, w := range result.Warnings {
		fmt.Fprintf(pr.out, "  warning: %s\n", w.Message)
	}
	return nil
}

// validateAll runs schema validation and cycle analysis over every loaded
// scene.
func validateAll(loadResult *LoadResult, pr *printer) ValidationResult {
	result := ValidationResult{Valid: true}

	for i := range loadResult.Scenes {
		spec := &loadResult.Scenes[i]
		pr.debugf("Validating scene: %s", spec.Name)

		result.Scenes = append(result.Scenes, spec.Name)
		result.Errors = append(result.Errors, compiler.Validate(spec)...)
		result.Warnings = append(result.Warnings, compiler.AnalyzeCycles(spec)...)
	}

	return result
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidationErrors reports schema errors. They are validation
// failures (exit 1), not command errors.
func outputValidationErrors(pr *printer, result ValidationResult) error {
	result.Valid = false
	errs := result.Errors
	message := fmt.Sprintf("validation failed with %d error(s)", len(errs))

	if pr.json {
		return pr.respond(Response{
			Data: result,
			Error: &ResponseError{
				Code:    errs[0].Code,
				Message: message,
				Field:   errs[0].Field,
				Details: errs[0].Message,
			},
		}, ExitFailure)
	}

	fmt.Fprintln(pr.out, "✗ Validation failed")
	fmt.Fprintln(pr.out)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(pr.out, "line %d\n", err.Line)
		}
		fmt.Fprintf(pr.out, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, message)
}
