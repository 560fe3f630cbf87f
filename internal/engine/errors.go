package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fieldnet/internal/field"
)

// RuntimeError represents a scene-level failure detected by the engine.
//
// Runtime errors include:
//   - Unknown field, node or type: a path or declaration names nothing
//   - Invalid compute: the compute does not apply to the field type
//   - Cycle detected: a route would close a route cycle (WithCycleCheck)
//   - Inbox closed: a write was posted after Stop
//
// Errors raised by the fields themselves are *field.Error values and are
// returned unwrapped.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Field is the field path involved, if any.
	Field string

	// PassToken identifies the pass the error happened in, if any.
	PassToken string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownField indicates a path that names no field.
	ErrCodeUnknownField RuntimeErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnknownNode indicates a name that is not a scene node.
	ErrCodeUnknownNode RuntimeErrorCode = "UNKNOWN_NODE"

	// ErrCodeUnknownType indicates a field type with no constructor.
	ErrCodeUnknownType RuntimeErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidCompute indicates a compute that is unknown or does not
	// apply to the field type.
	ErrCodeInvalidCompute RuntimeErrorCode = "INVALID_COMPUTE"

	// ErrCodeCycleDetected indicates a route would close a cycle.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeInboxClosed indicates a write posted after Stop.
	ErrCodeInboxClosed RuntimeErrorCode = "INBOX_CLOSED"

	// ErrCodeUnsupportedOp indicates a write operation the target cannot
	// perform.
	ErrCodeUnsupportedOp RuntimeErrorCode = "UNSUPPORTED_OP"

	// ErrCodeQuotaExhausted indicates writes are pending but the open pass
	// has applied its WithMaxWritesPerPass quota.
	ErrCodeQuotaExhausted RuntimeErrorCode = "QUOTA_EXHAUSTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.PassToken != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s (pass=%s, field=%s)", e.Code, e.Message, e.PassToken, e.Field)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	if e.PassToken != "" {
		return fmt.Sprintf("%s: %s (pass=%s)", e.Code, e.Message, e.PassToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownField returns true if the error is an unknown field error.
// Uses errors.As to handle wrapped errors.
func IsUnknownField(err error) bool { return isCode(err, ErrCodeUnknownField) }

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool { return isCode(err, ErrCodeCycleDetected) }

// IsInboxClosed returns true if the write was rejected by a stopped scene.
func IsInboxClosed(err error) bool { return isCode(err, ErrCodeInboxClosed) }

// ErrorCode returns the code of a field or runtime error, or "ERROR" for
// anything else. Scenario expectations and snapshots compare codes, not
// messages.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := field.CodeOf(err); code != "" {
		return string(code)
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

// NewUnknownFieldError creates a RuntimeError for a path naming no field.
func NewUnknownFieldError(path string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownField,
		Message: "no such field",
		Field:   path,
	}
}

// NewCycleError creates a RuntimeError for a route that would close a cycle.
func NewCycleError(from, to string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("route %s -> %s would close a route cycle", from, to),
		Field:   to,
		Details: map[string]string{"from": from, "to": to},
	}
}
