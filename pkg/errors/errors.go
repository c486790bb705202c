package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents the taxonomy of failures the CLI reports
type ErrorCategory string

const (
	CategoryUserInput     ErrorCategory = "user_input"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryIngestion     ErrorCategory = "ingestion"
	CategoryContract      ErrorCategory = "contract"
	CategoryIO            ErrorCategory = "io"
	CategoryInternal      ErrorCategory = "internal"
)

// Process exit codes, one per category
const (
	ExitSuccess       = 0
	ExitUserInput     = 2
	ExitConfiguration = 3
	ExitIngestion     = 4
	ExitContract      = 5
	ExitIO            = 6
	ExitInternal      = 10
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// User input errors
	CodeInvalidArgument ErrorCode = "invalid_argument"
	CodeFlagConflict    ErrorCode = "flag_conflict"
	CodeUnknownID       ErrorCode = "unknown_id"

	// Configuration errors
	CodeInvalidConfig   ErrorCode = "invalid_config"
	CodeMissingConfig   ErrorCode = "missing_config"
	CodeInvalidCurrency ErrorCode = "invalid_currency"

	// Ingestion errors
	CodeMissingColumn   ErrorCode = "missing_column"
	CodeInvalidData     ErrorCode = "invalid_data"
	CodeLimitExceeded   ErrorCode = "limit_exceeded"
	CodeUnsupportedFile ErrorCode = "unsupported_file"
	CodeOCRNotAllowed   ErrorCode = "ocr_not_allowed"

	// Contract errors
	CodeSchemaViolation ErrorCode = "schema_violation"
	CodeVersionMismatch ErrorCode = "version_mismatch"
	CodeMalformedJSON   ErrorCode = "malformed_json"

	// IO errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeWriteFailed    ErrorCode = "write_failed"
	CodeReadFailed     ErrorCode = "read_failed"

	// Internal errors
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodeUnexpectedError    ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries the structured details of an error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns the process exit code for the error category
func (e *ReconcilerError) GetExitCode() int {
	return ExitCodeFor(e.Category)
}

// ExitCodeFor maps a category to its exit code
func ExitCodeFor(category ErrorCategory) int {
	switch category {
	case CategoryUserInput:
		return ExitUserInput
	case CategoryConfiguration:
		return ExitConfiguration
	case CategoryIngestion:
		return ExitIngestion
	case CategoryContract:
		return ExitContract
	case CategoryIO:
		return ExitIO
	default:
		return ExitInternal
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a remediation hint
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// ContextKeys returns the detail keys in sorted order.
func (e *ReconcilerError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatStack renders the captured stack trace, one frame per line.
func (e *ReconcilerError) FormatStack() string {
	if len(e.StackTrace) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, frame := range e.StackTrace {
		fmt.Fprintf(&sb, "%+v\n", frame)
	}
	return sb.String()
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message, suggestion string, err error) *ReconcilerError {
	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, category, code, message)
	} else {
		result = New(category, code, message)
	}
	return result.WithSuggestion(suggestion)
}

// UserInputError reports a bad flag, argument or identifier supplied on the command line
func UserInputError(code ErrorCode, message string, err error) *ReconcilerError {
	var suggestion string

	switch code {
	case CodeFlagConflict:
		suggestion = "pass only one of the conflicting flags"
	case CodeUnknownID:
		suggestion = "list the run's matches and findings and use one of their ids"
	default:
		suggestion = "run the command with --help to see valid usage"
	}

	return build(CategoryUserInput, code, message, suggestion, err)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting in the client configuration file"
	case CodeInvalidCurrency:
		message = fmt.Sprintf("invalid currency code for '%s': %q", setting, value)
		suggestion = "use a three letter ISO-4217 code such as CLP or USD"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, suggestion, err).
		WithContext("setting", setting).
		WithContext("value", value)
}

// IngestionError reports input files that cannot be turned into records
func IngestionError(code ErrorCode, file string, row int, message string, err error) *ReconcilerError {
	var suggestion string

	switch code {
	case CodeMissingColumn:
		suggestion = "verify the file has all required columns with correct headers"
	case CodeInvalidData:
		suggestion = "correct the value or remove the row"
	case CodeLimitExceeded:
		suggestion = "split the input or raise the ingestion limit explicitly"
	case CodeUnsupportedFile:
		suggestion = "export the data as CSV"
	case CodeOCRNotAllowed:
		suggestion = "re-run with --enable-ocr or provide a text based source"
	default:
		suggestion = "check the file format and data integrity"
	}

	result := build(CategoryIngestion, code, message, suggestion, err).
		WithContext("file", file)
	if row > 0 {
		result.WithContext("row", row)
	}
	return result
}

// ContractError reports a payload that violates the run artifact contract
func ContractError(code ErrorCode, path string, message string, err error) *ReconcilerError {
	var suggestion string

	switch code {
	case CodeVersionMismatch:
		suggestion = "re-generate the artifact with a compatible version"
	case CodeMalformedJSON:
		suggestion = "the artifact is not valid JSON; re-generate it"
	default:
		suggestion = "the artifact does not match the contract; re-generate it"
	}

	result := build(CategoryContract, code, message, suggestion, err)
	if path != "" {
		result.WithContext("path", path)
	}
	return result
}

// IOError creates a file-system related error
func IOError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have access"
	case CodeWriteFailed:
		message = fmt.Sprintf("could not write: %s", path)
		suggestion = "ensure the output directory exists and is writable"
	case CodeReadFailed:
		message = fmt.Sprintf("could not read: %s", path)
		suggestion = "check the file and try again"
	default:
		message = fmt.Sprintf("io error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryIO, code, message, suggestion, err).
		WithContext("file_path", path)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvariantViolation:
		message = fmt.Sprintf("invariant violated during %s", operation)
		suggestion = "this is a bug - please report it with the run inputs"
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(CategoryInternal, code, message, suggestion, err).
		WithContext("operation", operation)
}

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := AsReconcilerError(err)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
