package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/kits"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <description>",
		Short: "Validate an app description without writing an image",
		Long: `Validate a CUE or YAML app description without writing an image.

Checks names, link syntax and duplicate inputs, then builds the app against
the kit catalog to check types, properties and link compatibility. Feedback
loops in the link graph are reported as warnings and do not fail
validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	src, err := ParseSource(path)
	if err == nil && src.Kind != SourceDescription {
		err = &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("%s is not an app description", path)}
	}
	if err != nil {
		code, message := parseCompileError(err)
		return outputValidateError(formatter, code, message, nil)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("description not found: %s", path), nil)
	}

	desc, err := compiler.LoadFile(path)
	if err != nil {
		loadErr := convertCompileError(err, "loading description")
		return outputValidationErrors(formatter, []compiler.ValidationError{{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr.Pos),
		}})
	}
	formatter.VerboseLog("Loaded %s: %d top-level component(s), %d link(s)",
		path, len(desc.Components), len(desc.Links))

	catalog, err := kits.Catalog()
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	validationErrors, warnings := validateDescription(desc, catalog, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, path, warnings)
}

// validateDescription runs the catalog-free checks and, when those pass,
// builds the app to check it against the catalog.
func validateDescription(desc *compiler.Description, catalog *kit.Catalog, formatter *OutputFormatter) ([]compiler.ValidationError, []compiler.CycleWarning) {
	if errs := compiler.Validate(desc); len(errs) > 0 {
		return errs, nil
	}

	formatter.VerboseLog("Building against %d kit(s)", len(catalog.Kits()))
	a, err := compiler.Build(desc, catalog, app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		var allErrors []compiler.ValidationError
		for _, e := range multierr.Errors(err) {
			allErrors = append(allErrors, buildValidationError(e))
		}
		return allErrors, nil
	}
	return nil, compiler.AnalyzeCycles(a)
}

// buildValidationError converts a build error into a validation error.
func buildValidationError(err error) compiler.ValidationError {
	var cErr *compiler.CompileError
	if errors.As(err, &cErr) {
		field := cErr.Path
		if cErr.Field != "" {
			field = cErr.Path + "." + cErr.Field
		}
		return compiler.ValidationError{
			Field:   field,
			Message: cErr.Message,
			Code:    MapCompileErrorToCode(cErr),
			Line:    lineOf(cErr.Pos),
		}
	}
	return compiler.ValidationError{
		Field:   "build",
		Message: err.Error(),
		Code:    ErrCodeBuildFailed,
	}
}

// lineOf extracts the line number from a CUE position, or 0.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, path string, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true, Warnings: warnings}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Description valid: %s\n", path)
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
