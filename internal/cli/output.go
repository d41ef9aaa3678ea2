package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/bashed/internal/codec"
	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/masters"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/schema"
	"github.com/roach88/bashed/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Build failure or failing scenarios
	ExitCommandError = 2 // Command error (invalid flags, unreadable manifest, bad configuration)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric      = "E_GENERIC"
	ErrCodeFormat       = "E_FORMAT"
	ErrCodeEncoding     = "E_ENCODING"
	ErrCodeCycle        = "E_CYCLIC_MASTERS"
	ErrCodeMissing      = "E_MISSING_MASTER"
	ErrCodeTooMany      = "E_TOO_MANY_PLUGINS"
	ErrCodePolicy       = "E_POLICY"
	ErrCodeUnresolved   = "E_UNRESOLVED_REFERENCE"
	ErrCodeSchema       = "E_SCHEMA"
	ErrCodeNotFound     = "E_NOT_FOUND"
	ErrCodeTestFailed   = "E_TEST_FAILED"
	ErrCodeInvalidInput = "E_INVALID_INPUT"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an engine error to its JSON error code.
func ErrorCode(err error) string {
	var compileErr *schema.CompileError
	switch {
	case codec.IsFormatError(err):
		return ErrCodeFormat
	case codec.IsEncodingError(err):
		return ErrCodeEncoding
	case loadorder.IsCyclicMastersError(err):
		return ErrCodeCycle
	case loadorder.IsMissingMasterError(err):
		return ErrCodeMissing
	case loadorder.IsTooManyPluginsError(err):
		return ErrCodeTooMany
	case merge.IsPolicyError(err):
		return ErrCodePolicy
	case masters.IsUnresolvedReferenceError(err):
		return ErrCodeUnresolved
	case errors.As(err, &compileErr):
		return ErrCodeSchema
	case errors.Is(err, store.ErrBuildNotFound):
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	BuildID string    `json:"build_id,omitempty"` // build log id, when the command recorded one
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_FORMAT", "E_POLICY", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success outputs a successful result in the configured format. Text
// output prints data with fmt; commands with richer text layouts write
// their own and use Success for JSON only.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns an ExitError
// carrying exit code code, so the command exits after the report.
func (f *OutputFormatter) Fail(code int, message string, err error) error {
	if outErr := f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(code, message, err)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
