package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bashed/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Games    []string          `json:"games,omitempty"`
	Records  int               `json:"records,omitempty"`
	Policies int               `json:"policies,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one schema problem with its source position.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a schema directory",
		Long: `Validate a CUE schema directory without building a patch.

Compiles the CUE package in the directory, overlays it on the builtin
table, and checks that every policy names a known record type, subrecord
and field.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Loading schema from %s", dir)

	table, err := schema.LoadDir(dir)
	if err != nil {
		var compileErr *schema.CompileError
		if !errors.As(err, &compileErr) {
			// Unreadable directory or CUE load failure.
			_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "load schema", err)
		}
		return outputValidationErrors(formatter, []ValidationError{toValidationError(compileErr)})
	}

	result := ValidationResult{
		Valid:    true,
		Games:    table.GameNames(),
		Records:  len(table.Records),
		Policies: len(table.Policies),
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d games, %d record types, %d policies)\n",
		len(result.Games), result.Records, result.Policies)
	return nil
}

func toValidationError(e *schema.CompileError) ValidationError {
	v := ValidationError{Field: e.Field, Message: e.Message, Code: ErrCodeSchema}
	if e.Pos.IsValid() {
		v.File = e.Pos.Filename()
		v.Line = e.Pos.Line()
	}
	return v
}

// outputValidationErrors outputs validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
