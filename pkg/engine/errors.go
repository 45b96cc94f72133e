package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a pipeline error.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates malformed or type-mismatched recipe inputs.
	// Examples: unregistered parameter key, nil sky, empty grid list.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassValidation indicates a value outside its declared legal range.
	// Examples: quality tier 3, simulation type 5, density 0.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassState indicates an operation invoked before its prerequisite stage completed.
	ErrorClassState ErrorClass = "state"

	// ErrorClassArtifact indicates an expected output file that is absent or malformed,
	// or an external stage that failed.
	ErrorClassArtifact ErrorClass = "artifact"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the artifact or key that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)", e.Class, msg, e.Resource, e.Operation)
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Class, msg, e.Resource)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Message: message,
		Err:     err,
	}
}

// NewStateError creates a new state error.
func NewStateError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassState,
		Message: message,
		Err:     err,
	}
}

// NewArtifactError creates a new artifact error.
func NewArtifactError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassArtifact,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsState returns true if the error is classified as a state error.
func IsState(err error) bool {
	return hasClass(err, ErrorClassState)
}

// IsArtifact returns true if the error is classified as an artifact error.
func IsArtifact(err error) bool {
	return hasClass(err, ErrorClassArtifact)
}

// ErrorCode returns the code of the first EngineError in the chain, or "".
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeUnknownParameter  = "UNKNOWN_PARAMETER"
	ErrCodeTypeMismatch      = "TYPE_MISMATCH"
	ErrCodeOutOfRange        = "OUT_OF_RANGE"
	ErrCodeFrozen            = "FROZEN"
	ErrCodeInvalidSky        = "INVALID_SKY"
	ErrCodeInvalidGrid       = "INVALID_GRID"
	ErrCodeInvalidHours      = "INVALID_HOURS"
	ErrCodeInvalidPath       = "INVALID_PATH"
	ErrCodeNotExecuted       = "NOT_EXECUTED"
	ErrCodeMissingArtifact   = "MISSING_ARTIFACT"
	ErrCodeMalformedArtifact = "MALFORMED_ARTIFACT"
	ErrCodeExternalFailed    = "EXTERNAL_FAILED"
	ErrCodeCycle             = "CYCLE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidRecipe     = "INVALID_RECIPE"
	ErrCodePolicyDenied      = "POLICY_DENIED"
)
