package tools

import (
	"errors"

	mcperrors "lerian-mcp-git/internal/errors"
)

// Result is the outcome of one operation: a value on success or a typed error
type Result struct {
	Value string
	Err   *mcperrors.StandardError
}

// Success wraps a successful value
func Success(value string) Result {
	return Result{Value: value}
}

// Failure wraps err, converting foreign errors into INTERNAL_ERROR
func Failure(err error) Result {
	var stdErr *mcperrors.StandardError
	if errors.As(err, &stdErr) {
		return Result{Err: stdErr}
	}
	return Result{Err: mcperrors.NewInternalError("Operation failed", err)}
}

// OK reports whether the operation succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Code returns the error code, or empty on success
func (r Result) Code() mcperrors.ErrorCode {
	if r.Err == nil {
		return ""
	}
	return r.Err.ErrorInfo.Code
}

// String renders the result as the host-facing message
func (r Result) String() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Value
}
