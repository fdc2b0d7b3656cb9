package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// UnresolvedReference indicates a reference whose target is not in the registry
	UnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"
	// ReferenceCycle indicates a reference back into the current expansion path
	ReferenceCycle ErrorCode = "REFERENCE_CYCLE"
	// ResolutionTooDeep indicates reference expansion exceeded the depth limit
	ResolutionTooDeep ErrorCode = "RESOLUTION_TOO_DEEP"
	// MalformedSnapshot indicates the backend returned a structurally invalid snapshot
	MalformedSnapshot ErrorCode = "MALFORMED_SNAPSHOT"
	// MissingSpanLocation indicates a diagnostic without any source location
	MissingSpanLocation ErrorCode = "MISSING_SPAN_LOCATION"
	// InvalidPosition indicates a diagnostic position outside the source text
	InvalidPosition ErrorCode = "INVALID_POSITION"
	// UnknownUnit indicates selection of an unknown functional unit kind
	UnknownUnit ErrorCode = "UNKNOWN_UNIT"
	// BlockMissing indicates a named snapshot block is absent
	BlockMissing ErrorCode = "BLOCK_MISSING"
	// AliasTargetMissing indicates a register alias pointing at no register
	AliasTargetMissing ErrorCode = "ALIAS_TARGET_MISSING"
	// ObjectNotFound indicates a lookup of an identifier absent from the snapshot
	ObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	// BackendUnavailable indicates a transport failure talking to the simulator
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// BackendRejected indicates the simulator validated and rejected a request (HTTP 400)
	BackendRejected ErrorCode = "BACKEND_REJECTED"
	// StaleResponse indicates a response superseded by a newer tick request
	StaleResponse ErrorCode = "STALE_RESPONSE"
	// NoSnapshot indicates no snapshot is currently loaded
	NoSnapshot ErrorCode = "NO_SNAPSHOT"
	// NotLoaded indicates instruction metadata has not been loaded yet
	NotLoaded ErrorCode = "NOT_LOADED"
	// InvalidConfig indicates an invalid CPU or application configuration
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// PresetNotFound indicates a missing stored configuration preset
	PresetNotFound ErrorCode = "PRESET_NOT_FOUND"
	// InvalidRequest indicates malformed API input
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	// NotConfigured indicates a feature whose backing store was not set up
	NotConfigured ErrorCode = "NOT_CONFIGURED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a supersim error with a stable code and message
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new Error with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// As is errors.As from the standard library, re-exported for packages that import
// this package under the name errors.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// IsConstruction reports whether the code denotes a contract violation between
// backend and client. These are surfaced to the caller, never masked.
func IsConstruction(code ErrorCode) bool {
	switch code {
	case UnresolvedReference, ReferenceCycle, ResolutionTooDeep, MalformedSnapshot,
		MissingSpanLocation, InvalidPosition, UnknownUnit, BlockMissing, AliasTargetMissing:
		return true
	default:
		return false
	}
}
