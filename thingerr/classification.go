package thingerr

// ErrorClass categorizes errors by their nature so batch callers can decide
// between skipping a record and retrying a call.
type ErrorClass string

const (
	// ErrorClassPermanent marks failures that will repeat on identical input.
	// The record is logged and skipped.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassTransient marks failures that may resolve on retry
	// (network timeouts, disk pressure, cancelled contexts).
	ErrorClassTransient ErrorClass = "transient"
)

// DefaultClassForCode returns the default class for a code.
func DefaultClassForCode(code string) ErrorClass {
	switch code {
	case CodeStorage:
		return ErrorClassTransient
	case CodeSchemaResolution, CodeIdentity, CodeMergeConflict, CodeUnsupported, CodeConfig, CodeInvalidRecord:
		return ErrorClassPermanent
	default:
		return ErrorClassTransient
	}
}
