package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the closed set of error codes surfaced to callers of the core.
type ErrorCode string

// Error code constants
const (
	CodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	CodePermissionDenied        ErrorCode = "PERMISSION_DENIED"
	CodeCriticalDependencyUnmet ErrorCode = "CRITICAL_DEPENDENCY_UNMET"
	CodeDependentStillActive    ErrorCode = "DEPENDENT_STILL_ACTIVE"
	CodeCircularDependency      ErrorCode = "CIRCULAR_DEPENDENCY"
	CodeMissingRequiredField    ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeLastSuperuserProtected  ErrorCode = "LAST_SUPERUSER_PROTECTED"
	CodeConflict                ErrorCode = "CONFLICT"
	CodeInternal                ErrorCode = "INTERNAL"
)

// DomainError carries a stable error code plus enough context (document
// numbers, required capability, offending dependencies) to act on.
type DomainError struct {
	Code    ErrorCode
	Message string
	Details []string // e.g. blocking dependency numbers
}

func (e *DomainError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, ", "))
}

// NewDomainError builds a DomainError with optional detail items.
func NewDomainError(code ErrorCode, message string, details ...string) *DomainError {
	return &DomainError{Code: code, Message: message, Details: details}
}

// CodeOf extracts the error code from err, or CodeInternal if err is not a
// DomainError.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// InvalidTransition builds the standard illegal-transition error, listing the
// source and attempted target state.
func InvalidTransition(from, to Status) *DomainError {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("transition %s -> %s is not permitted", from, to))
}

// PermissionDenied builds the standard authorization error naming the
// required capability or role.
func PermissionDenied(required string) *DomainError {
	return NewDomainError(CodePermissionDenied,
		fmt.Sprintf("requires %s", required))
}

// MissingField builds the standard validation error for an absent input.
func MissingField(field string) *DomainError {
	return NewDomainError(CodeMissingRequiredField,
		fmt.Sprintf("%s is required", field))
}

// NotFound builds the standard lookup error for a missing entity.
func NotFound(kind, id string) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %s not found", kind, id))
}
