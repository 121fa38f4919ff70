package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/docstore/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario or validation failure, key not found
	ExitCommandError = 2 // Command error (bad arguments, backend unavailable, etc.)
)

// Error codes reported in CLIError.Code.
const (
	CodeNotFound     = "E_NOT_FOUND"
	CodeInvalidInput = "E_INVALID_INPUT"
	CodeQueryFailed  = "E_QUERY_FAILED"
	CodeEnrichFailed = "E_ENRICH_FAILED"
	CodeInvalidSpec  = "E_INVALID_SPEC"
	CodeTestFailed   = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
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

// Fail reports err through Error and returns an ExitError carrying exit.
func (f *OutputFormatter) Fail(exit int, code string, err error) error {
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// EntryView is the output form of a stored entry. Value uses the storage
// encoding, so byte sequences appear as {"$bytes": "..."}.
type EntryView struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (e EntryView) String() string {
	return e.Key + "\t" + string(e.Value)
}

// newEntryView renders one entry.
func newEntryView(key ir.Key, value ir.IRValue) (EntryView, error) {
	data, err := ir.EncodeValue(value)
	if err != nil {
		return EntryView{}, fmt.Errorf("key %s: %w", key, err)
	}
	return EntryView{Key: key.String(), Value: data}, nil
}

// Entries outputs a list of entries: one "key<TAB>value" line each in text
// mode, a data array in JSON mode.
func (f *OutputFormatter) Entries(entries []ir.Entry) error {
	views := make([]EntryView, len(entries))
	for i, e := range entries {
		v, err := newEntryView(e.Key, e.Value)
		if err != nil {
			return err
		}
		views[i] = v
	}

	if f.Format == "json" {
		return f.Success(views)
	}
	for _, v := range views {
		fmt.Fprintln(f.Writer, v)
	}
	return nil
}

// Value outputs a single value in the storage encoding.
func (f *OutputFormatter) Value(v ir.IRValue) error {
	data, err := ir.EncodeValue(v)
	if err != nil {
		return err
	}
	if f.Format == "json" {
		return f.Success(json.RawMessage(data))
	}
	fmt.Fprintln(f.Writer, string(data))
	return nil
}
