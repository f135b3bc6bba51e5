// Package errors provides the error taxonomy shared by every operation and host surface
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Repository selection errors
	ErrorCodeNoRepositorySelected ErrorCode = "NO_REPOSITORY_SELECTED"
	ErrorCodeInvalidRepository    ErrorCode = "INVALID_REPOSITORY"

	// Argument errors
	ErrorCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Version file errors
	ErrorCodeVersionFileMissing   ErrorCode = "VERSION_FILE_MISSING"
	ErrorCodeInvalidVersionFormat ErrorCode = "INVALID_VERSION_FORMAT"
	ErrorCodeParseFailure         ErrorCode = "PARSE_FAILURE"

	// System and processing errors
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents the unified error structure across all host surfaces
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// Is reports whether target is a StandardError carrying the same code, so
// errors.Is(err, ErrVersionFileMissing) works for freshly built errors.
func (e *StandardError) Is(target error) bool {
	var other *StandardError
	if !errors.As(target, &other) {
		return false
	}
	return e.ErrorInfo.Code == other.ErrorInfo.Code
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Protocol string      `json:"protocol,omitempty"`
	TraceID  string      `json:"trace_id,omitempty"`
}

// ValidationDetail provides specific validation error information
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// NewStandardError creates a new standardized error
func NewStandardError(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewNoRepositorySelectedError is returned when an operation needs a repository
// before SetRepositoryPath has succeeded. hint is appended to the message when set.
func NewNoRepositorySelectedError(hint string) *StandardError {
	message := "Repository path not set."
	if hint != "" {
		message += " " + hint
	}
	return NewStandardError(ErrorCodeNoRepositorySelected, message, nil)
}

// NewInvalidRepositoryError creates an error for a supplied path that is not a
// usable repository directory.
func NewInvalidRepositoryError(path string) *StandardError {
	return NewStandardError(ErrorCodeInvalidRepository,
		fmt.Sprintf("Invalid or non-Git directory: %s", path),
		ValidationDetail{Field: "path", Reason: "not_a_repository", Value: path})
}

// NewStaleRepositoryError creates an error for a stored path that no longer
// points at a valid repository.
func NewStaleRepositoryError(path string) *StandardError {
	return NewStandardError(ErrorCodeInvalidRepository,
		fmt.Sprintf("Invalid Git repository: %s", path),
		ValidationDetail{Field: "repository", Reason: "no_longer_valid", Value: path})
}

// NewInvalidArgumentError creates an error for an argument that failed to parse
func NewInvalidArgumentError(field string, value interface{}) *StandardError {
	return NewStandardError(ErrorCodeInvalidArgument, "Invalid number format.",
		ValidationDetail{Field: field, Reason: "not_an_integer", Value: value})
}

// NewVersionFileMissingError creates an error for a read against a repository without a version file
func NewVersionFileMissingError(fileName string) *StandardError {
	return NewStandardError(ErrorCodeVersionFileMissing, fmt.Sprintf("%s not found.", fileName), nil)
}

// NewInvalidVersionFormatError creates an error for version text that is not three dotted parts
func NewInvalidVersionFormatError(content string) *StandardError {
	return NewStandardError(ErrorCodeInvalidVersionFormat, "Invalid version format.",
		ValidationDetail{Field: "version", Reason: "expected_major_minor_patch", Value: content})
}

// NewParseFailureError creates an error for a version component that is not a non-negative integer
func NewParseFailureError(component string) *StandardError {
	return NewStandardError(ErrorCodeParseFailure,
		fmt.Sprintf("Invalid version component: %s", component),
		ValidationDetail{Field: "version", Reason: "non_integer_component", Value: component})
}

// NewInternalError creates an internal error
func NewInternalError(message string, originalError error) *StandardError {
	details := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if originalError != nil {
		details["original_error"] = originalError.Error()
	}

	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeInternalError,
			Message: message,
			Details: details,
		},
	}
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// WithProtocol adds protocol information to the error
func (e *StandardError) WithProtocol(protocolName string) *StandardError {
	e.ErrorInfo.Protocol = protocolName
	return e
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeInvalidArgument, ErrorCodeInvalidRepository:
		return http.StatusBadRequest
	case ErrorCodeNoRepositorySelected:
		return http.StatusPreconditionFailed
	case ErrorCodeVersionFileMissing:
		return http.StatusNotFound
	case ErrorCodeInvalidVersionFormat, ErrorCodeParseFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}

	w.WriteHeader(e.ToHTTPStatus())

	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// Sentinel values for errors.Is comparisons. Messages are placeholders; only the code is compared.
var (
	ErrVersionFileMissing   = NewStandardError(ErrorCodeVersionFileMissing, "version file missing", nil)
	ErrInvalidVersionFormat = NewStandardError(ErrorCodeInvalidVersionFormat, "invalid version format", nil)
	ErrParseFailure         = NewStandardError(ErrorCodeParseFailure, "parse failure", nil)
)

// CodeOf returns the taxonomy code carried by err, or ErrorCodeInternalError
// for errors that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.ErrorInfo.Code
	}
	return ErrorCodeInternalError
}

// IsRepositoryError checks if the error concerns repository selection
func IsRepositoryError(err *StandardError) bool {
	return err.ErrorInfo.Code == ErrorCodeNoRepositorySelected ||
		err.ErrorInfo.Code == ErrorCodeInvalidRepository
}

// IsVersionError checks if the error concerns the version file
func IsVersionError(err *StandardError) bool {
	return err.ErrorInfo.Code == ErrorCodeVersionFileMissing ||
		err.ErrorInfo.Code == ErrorCodeInvalidVersionFormat ||
		err.ErrorInfo.Code == ErrorCodeParseFailure
}
