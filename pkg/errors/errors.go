// Package errors defines the application error taxonomy: categorized,
// coded errors with context and stack traces for the reconciliation engine
// and its surrounding surfaces.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryStore          ErrorCategory = "store"
	CategoryFormula        ErrorCategory = "formula"
	CategoryClassification ErrorCategory = "classification"
	CategoryJob            ErrorCategory = "job"
	CategoryReport         ErrorCategory = "report"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Store errors
	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeBatchWriteFailed ErrorCode = "batch_write_failed"
	CodeReadFailed       ErrorCode = "read_failed"
	CodeNotFound         ErrorCode = "not_found"

	// Formula errors
	CodeCompileFailed  ErrorCode = "compile_failed"
	CodeReferenceCycle ErrorCode = "reference_cycle"

	// Classification errors
	CodeRecordFailed ErrorCode = "record_failed"

	// Job errors
	CodeDispatchFailed ErrorCode = "dispatch_failed"
	CodeJobNotFound    ErrorCode = "job_not_found"

	// Report errors
	CodeSheetFailed    ErrorCode = "sheet_failed"
	CodeRetryExhausted ErrorCode = "retry_exhausted"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeRunLocked       ErrorCode = "run_locked"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
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

// StoreError wraps a relational-store failure.
func StoreError(code ErrorCode, operation string, err error) *ReconcilerError {
	return Wrap(err, CategoryStore, code, fmt.Sprintf("store operation %s failed", operation)).
		WithContext("operation", operation)
}

// FormulaError wraps a formula compilation failure.
func FormulaError(code ErrorCode, formula string, err error) *ReconcilerError {
	return Wrap(err, CategoryFormula, code, fmt.Sprintf("formula %q cannot be compiled", formula)).
		WithContext("formula", formula)
}

// ClassificationError wraps a per-record classification failure. Callers
// log these and drop the record from the update batch; they never abort the
// run.
func ClassificationError(orderKey string, err error) *ReconcilerError {
	return Wrap(err, CategoryClassification, CodeRecordFailed,
		fmt.Sprintf("classification failed for order %s", orderKey)).
		WithContext("order_key", orderKey)
}

// JobError wraps a report-job failure. err may be nil for conditions with
// no underlying cause, such as an unknown job id.
func JobError(code ErrorCode, jobID string, err error) *ReconcilerError {
	message := fmt.Sprintf("job %s failed", jobID)
	if code == CodeJobNotFound {
		message = fmt.Sprintf("job %s not found", jobID)
	}
	if err == nil {
		return New(CategoryJob, code, message).WithContext("job_id", jobID)
	}
	return Wrap(err, CategoryJob, code, message).WithContext("job_id", jobID)
}

// ReportError wraps a report-section failure.
func ReportError(code ErrorCode, sheet string, err error) *ReconcilerError {
	return Wrap(err, CategoryReport, code, fmt.Sprintf("report sheet %q failed", sheet)).
		WithContext("sheet", sheet)
}

// ConfigError creates a configuration error.
func ConfigError(code ErrorCode, detail string) *ReconcilerError {
	return New(CategoryConfiguration, code, detail)
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var recErr *ReconcilerError
	if errors.As(err, &recErr) {
		return recErr, true
	}
	return nil, false
}

// GetExitCode returns the process exit code for this error.
func (e *ReconcilerError) GetExitCode() int {
	return GetExitCode(e)
}

// IsCategory reports whether err is a ReconcilerError of the given
// category.
func IsCategory(err error, category ErrorCategory) bool {
	var recErr *ReconcilerError
	if errors.As(err, &recErr) {
		return recErr.Category == category
	}
	return false
}

// IsCode reports whether err is a ReconcilerError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var recErr *ReconcilerError
	if errors.As(err, &recErr) {
		return recErr.Code == code
	}
	return false
}

// GetExitCode returns an appropriate process exit code for the error.
func GetExitCode(err error) int {
	var recErr *ReconcilerError
	if !errors.As(err, &recErr) {
		return 1
	}
	switch recErr.Category {
	case CategoryConfiguration:
		return 2
	case CategoryStore:
		return 3
	case CategoryFormula, CategoryClassification:
		return 4
	case CategoryJob, CategoryReport:
		return 5
	default:
		return 1
	}
}
