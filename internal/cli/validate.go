package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/compiler"
	"github.com/roach88/docstore/internal/datastore"
	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/kv/memory"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Queries   int                        `json:"queries"`
	Enrichers int                        `json:"enrichers"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
	Warnings  []compiler.OrderWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.cue|spec-dir>",
		Short: "Check a spec's queries and enrichers",
		Long: `Compile a CUE spec and run the static checks on its queries and
enrichers: unknown functions, misplaced or invalid regular expressions,
duplicate select names, suspending calls inside enrichers and conflicting
attribute paths.

Enrichers that read an attribute only a later enricher writes are reported
as warnings; they do not fail validation.

Exit codes:
  0 - Spec valid (warnings allowed)
  1 - Validation errors
  2 - Spec could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, err := LoadSpecs(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loadResult.FileCount, path)

	spec := loadResult.Spec
	result := ValidationResult{
		Queries:   len(spec.Queries),
		Enrichers: len(spec.Enrichers),
		Errors:    compiler.Validate(spec, functionRegistry()),
		Warnings:  compiler.AnalyzeOrdering(spec.Enrichers),
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// functionRegistry returns the functions expressions may call from the CLI:
// the builtins plus the data store's sub-query hook.
func functionRegistry() eval.Functions {
	ds := datastore.New(memory.New(), eval.Builtins())
	return ds.Evaluator().Functions()
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	fmt.Fprintf(w, "✓ Spec valid (%d queries, %d enrichers)\n", result.Queries, result.Enrichers)
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs the validation errors of a loaded spec.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
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
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		fmt.Fprintf(w, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
