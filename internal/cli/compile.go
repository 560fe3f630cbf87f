package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldnet/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledScene is a scene spec together with its content hash.
type CompiledScene struct {
	Hash  string       `json:"hash"`
	Scene ir.SceneSpec `json:"scene"`
}

// CompilationResult holds the compiled scenes.
type CompilationResult struct {
	IRVersion string          `json:"ir_version"`
	Scenes    []CompiledScene `json:"scenes"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scenes-dir>",
		Short: "Compile CUE scenes to IR",
		Long: `Compile the CUE scene files of a directory to scene IR.

Each scene is listed with its content hash. Passes recorded against a scene
carry the same hash, so a stored trace can be matched to the scene it was
produced from.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, scenesDir string, cmd *cobra.Command) error {
	pr := newPrinter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadScenes(scenesDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return pr.fail(ExitCommandError, ResponseError{Code: code, Message: message})
	}

	pr.debugf("Found %d CUE file(s) in %s", loadResult.FileCount, scenesDir)

	if len(loadErrors) > 0 {
		return outputCompileErrors(pr, loadErrors)
	}

	result := &CompilationResult{
		IRVersion: ir.IRVersion,
		Scenes:    make([]CompiledScene, 0, len(loadResult.Scenes)),
	}
	for _, spec := range loadResult.Scenes {
		pr.debugf("Compiling scene: %s", spec.Name)
		hash, err := ir.SceneHash(spec)
		if err != nil {
			return pr.fail(ExitCommandError, ResponseError{Code: ErrCodeGeneric, Message: fmt.Sprintf("hashing scene %s: %v", spec.Name, err)})
		}
		result.Scenes = append(result.Scenes, CompiledScene{Hash: hash, Scene: spec})
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return pr.fail(ExitCommandError, ResponseError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(pr, result, opts.Output)
}

func outputCompileSuccess(pr *printer, result *CompilationResult, outputFile string) error {
	if pr.json {
		return pr.respond(Response{Data: result}, ExitSuccess)
	}

	w := pr.out
	fmt.Fprintf(w, "✓ Compiled %d scene(s)\n\n", len(result.Scenes))
	for _, c := range result.Scenes {
		fields := 0
		for _, n := range c.Scene.Nodes {
			fields += len(n.Fields)
		}
		fmt.Fprintf(w, "  %s: %d node(s), %d field(s), %d route(s)\n",
			c.Scene.Name, len(c.Scene.Nodes), fields, len(c.Scene.Routes))
		fmt.Fprintf(w, "    %s\n", c.Hash)
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote scene IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors reports every scene that failed to compile. The JSON
// error is the first one; data lists them all.
func outputCompileErrors(pr *printer, errs []error) error {
	if pr.json {
		all := make([]ResponseError, len(errs))
		for i, err := range errs {
			all[i].Code, all[i].Message = parseCompileError(err)
		}
		first := all[0]
		first.Message = fmt.Sprintf("compilation failed with %d error(s): %s", len(errs), first.Message)
		return pr.respond(Response{Data: all, Error: &first}, ExitCommandError)
	}

	w := pr.out
	fmt.Fprintln(w, "✗ Compilation failed")
	fmt.Fprintln(w)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result to a file as indented JSON.
// Canonical JSON is only used for hashing.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
