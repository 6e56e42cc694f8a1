package thingerr

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes used across components.
const (
	// CodeSchemaResolution indicates a type name is unknown or its parent chain
	// never reaches a tag and a collection.
	CodeSchemaResolution = "SCHEMA_RESOLUTION"

	// CodeIdentity indicates a canonical key could not be derived.
	CodeIdentity = "IDENTITY"

	// CodeMergeConflict indicates two versions of one ID declare incompatible
	// types and the merge policy is strict.
	CodeMergeConflict = "MERGE_CONFLICT"

	// CodeStorage indicates a backend failure (disk, network, serialization).
	CodeStorage = "STORAGE"

	// CodeUnsupported indicates the backend does not offer the operation.
	CodeUnsupported = "UNSUPPORTED"

	// CodeConfig indicates invalid configuration.
	CodeConfig = "CONFIG"

	// CodeInvalidRecord indicates a record field could not be coerced into
	// its expected shape (an unparseable date, for instance).
	CodeInvalidRecord = "INVALID_RECORD"
)

// Error is a structured error type for consolidation operations.
// It records which component and operation failed, a standard code and an
// optional underlying cause.
type Error struct {
	// Component is the package that produced the error (e.g. "schema", "filestore")
	Component string

	// Operation is the specific operation that failed (e.g. "resolve", "set")
	Operation string

	// Code is one of the Code* constants
	Code string

	// Message is a human-readable error message
	Message string

	// Details contains additional context as key-value pairs
	Details map[string]any

	// Cause is the underlying error
	Cause error

	// Class categorizes the error for retry decisions
	Class ErrorClass `json:"class,omitempty"`
}

// New creates a structured error. The class defaults to DefaultClassForCode.
//
// Example:
//
//	err := thingerr.New("identity", "identify", thingerr.CodeIdentity, "nothing to hash")
func New(component, operation, code, message string) *Error {
	return &Error{
		Component: component,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     DefaultClassForCode(code),
	}
}

// Newf is New with a formatted message.
func Newf(component, operation, code, format string, args ...any) *Error {
	return New(component, operation, code, fmt.Sprintf(format, args...))
}

// Storage wraps cause as a CodeStorage error. A nil cause returns nil.
func Storage(component, operation string, cause error) error {
	if cause == nil {
		return nil
	}
	return New(component, operation, CodeStorage, "").WithCause(cause)
}

// WithCause sets the underlying error and returns the same instance.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails merges details into the error and returns the same instance.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithClass overrides the error class and returns the same instance.
func (e *Error) WithClass(class ErrorClass) *Error {
	e.Class = class
	return e
}

// Error formats the error as "component [operation/code]: message: cause".
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s [%s/%s]", e.Component, e.Operation, e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code. Component and
// operation take part in the comparison only when set on target, so
// errors.Is(err, &Error{Code: CodeStorage}) matches any storage failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	if t.Component != "" && t.Component != e.Component {
		return false
	}
	if t.Operation != "" && t.Operation != e.Operation {
		return false
	}
	return true
}

// Code returns the code of the first *Error in err's chain, or "" if there
// is none.
func Code(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code string) bool {
	return Code(err) == code && code != ""
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Class == ErrorClassTransient
}
