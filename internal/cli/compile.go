package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string // image file path
	Database string // image store path
}

// CompileSummary describes a compiled app.
type CompileSummary struct {
	App        string                  `json:"app"`
	Components int                     `json:"components"`
	Links      int                     `json:"links"`
	Size       int                     `json:"size"`
	Output     string                  `json:"output,omitempty"`
	Image      *store.Image            `json:"image,omitempty"`
	Warnings   []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <description>",
		Short: "Compile an app description to a binary image",
		Long: `Compile a CUE or YAML app description to a binary app image.

The description is validated, every component is created from the kit
catalog and every link is checked. The image is written to --output, stored
as a new revision in the --db image store, or both. Feedback loops in the
link graph are reported as warnings.

Examples:
  svm compile plant.cue -o plant.sab
  svm compile plant.yaml --db ./svm.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "image file path (.sab)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite image store")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)

	src, err := ParseSource(path)
	if err == nil && src.Kind != SourceDescription {
		err = &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("%s is not an app description", path)}
	}
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	catalog, err := kits.Catalog()
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Compiling %s", path)
	a, err := LoadSource(ctx, src, LoadOptions{
		Catalog: catalog,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return outputCompileErrors(formatter, multierr.Errors(err))
	}

	data, err := codec.Encode(a)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("encoding image: %v", err), nil)
	}
	summary := CompileSummary{
		App:        a.Root().Name(),
		Components: a.Len(),
		Links:      len(a.Links()),
		Size:       len(data),
		Output:     opts.Output,
		Warnings:   compiler.AnalyzeCycles(a),
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := codec.SaveFile(opts.Output, a); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing image file: %v", err), nil)
		}
		formatter.VerboseLog("Wrote %d bytes to %s", len(data), opts.Output)
	}

	// Store a new revision if --db specified
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return outputCompileError(formatter, ErrCodeDatabase, fmt.Sprintf("opening image store: %v", err), nil)
		}
		defer st.Close()
		img, err := st.PutApp(ctx, a)
		if err != nil {
			return outputCompileError(formatter, ErrCodeDatabase, fmt.Sprintf("storing image: %v", err), nil)
		}
		summary.Image = &img
	}

	return outputCompileSuccess(formatter, summary)
}

// commandContext returns the command's context, or a background context
// when the command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, summary CompileSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %s: %d component(s), %d link(s), %d bytes\n",
		summary.App, summary.Components, summary.Links, summary.Size)

	for _, w := range summary.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	if summary.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote image to %s\n", summary.Output)
	}
	if summary.Image != nil {
		fmt.Fprintf(formatter.Writer, "Stored %s revision %d (%s)\n",
			summary.Image.App, summary.Image.Revision, summary.Image.ID)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Compilation errors are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
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
