package field

import (
	"errors"
	"fmt"
)

// Error is the single error type raised by the field core.
//
// Every failure is local and synchronous: the operation that returns an
// Error has not mutated the graph (routing, value writes and sequence
// mutations are each atomic with respect to their own failure modes).
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Field is the full name of the field the error was raised on.
	Field string

	// Index and Size describe bounds failures and route slots.
	Index int
	Size  int

	// Expected and Actual describe contract and value-type mismatches.
	Expected string
	Actual   string

	// Err is an optional underlying cause (e.g. a value.ParseError).
	Err error
}

// ErrorCode categorizes field errors.
type ErrorCode string

const (
	// ErrCodeAccessViolation indicates a read, write or route forbidden by
	// the field's access type.
	ErrCodeAccessViolation ErrorCode = "ACCESS_VIOLATION"

	// ErrCodeInvalidRouteType indicates a route that does not satisfy the
	// destination's connection contract (including "too many routes").
	ErrCodeInvalidRouteType ErrorCode = "INVALID_ROUTE_TYPE"

	// ErrCodeMissingRequiredRoute indicates a field evaluated before all of
	// its required route slots were occupied.
	ErrCodeMissingRequiredRoute ErrorCode = "MISSING_REQUIRED_ROUTE"

	// ErrCodeIndexOutOfRange indicates a sequence bounds violation.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeInvalidValueType indicates a reference rejected by a field's
	// value validator.
	ErrCodeInvalidValueType ErrorCode = "INVALID_VALUE_TYPE"

	// ErrCodeInvalidContract indicates a malformed connection contract.
	ErrCodeInvalidContract ErrorCode = "INVALID_CONTRACT"

	// ErrCodeRawSizeMismatch indicates a raw byte buffer whose element size
	// or length does not match the field's value type.
	ErrCodeRawSizeMismatch ErrorCode = "RAW_SIZE_MISMATCH"

	// ErrCodeParse indicates text that does not match the value grammar.
	ErrCodeParse ErrorCode = "PARSE_ERROR"
)

// RouteTypeError is the code raised when a route is rejected at connection
// time. It is the same category as an invalid route discovered later.
const RouteTypeError = ErrCodeInvalidRouteType

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not a field error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsAccessViolation returns true if err is an access violation.
func IsAccessViolation(err error) bool {
	return CodeOf(err) == ErrCodeAccessViolation
}

// IsInvalidRouteType returns true if err is a contract violation.
func IsInvalidRouteType(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRouteType
}

// IsMissingRequiredRoute returns true if err reports unoccupied required slots.
func IsMissingRequiredRoute(err error) bool {
	return CodeOf(err) == ErrCodeMissingRequiredRoute
}

// IsIndexOutOfRange returns true if err is a sequence bounds violation.
func IsIndexOutOfRange(err error) bool {
	return CodeOf(err) == ErrCodeIndexOutOfRange
}

// IsInvalidValueType returns true if err is a rejected reference value.
func IsInvalidValueType(err error) bool {
	return CodeOf(err) == ErrCodeInvalidValueType
}

func accessError(fullName, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeAccessViolation,
		Message: fmt.Sprintf(format, args...),
		Field:   fullName,
	}
}

func indexError(fullName string, index, size int) *Error {
	return &Error{
		Code:    ErrCodeIndexOutOfRange,
		Message: fmt.Sprintf("index %d outside the bounds of a field of size %d", index, size),
		Field:   fullName,
		Index:   index,
		Size:    size,
	}
}

func parseError(fullName string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: "invalid value text",
		Field:   fullName,
		Err:     err,
	}
}

func rawSizeError(fullName, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeRawSizeMismatch,
		Message: fmt.Sprintf(format, args...),
		Field:   fullName,
	}
}
