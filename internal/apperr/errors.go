// Package apperr defines the structured errors shared by the migration core.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an Error.
type Code int

const (
	// ResolutionFailed means an input matched no enum member.
	ResolutionFailed Code = 1000 + iota
	// UnsupportedOperation means a resource type lacks a required mapping.
	UnsupportedOperation
	// NoData means the prerequisite data for an operation is absent.
	NoData
	// PartialRow marks a single malformed row during bulk processing.
	PartialRow
	// InvalidTransition means a status change is not allowed from the current state.
	InvalidTransition
	// NotFound means a keyed lookup found nothing.
	NotFound
	// InvalidInput covers malformed caller input.
	InvalidInput
)

var codeNames = map[Code]string{
	ResolutionFailed:     "resolution_failed",
	UnsupportedOperation: "unsupported_operation",
	NoData:               "no_data",
	PartialRow:           "partial_row",
	InvalidTransition:    "invalid_transition",
	NotFound:             "not_found",
	InvalidInput:         "invalid_input",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Error is a coded error with optional context and cause.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair and returns the same error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Resolution reports that input could not be resolved against the named enum.
func Resolution(enumName string, input interface{}) *Error {
	return New(ResolutionFailed, "cannot resolve %v (%T) to a %s", input, input, enumName).
		WithDetail("enum", enumName)
}

// Unsupported reports that what has no mapping for the given subject.
func Unsupported(what string, subject interface{}) *Error {
	return New(UnsupportedOperation, "%s is not supported for %v", what, subject)
}

// HasCode reports whether err, or anything it wraps, is an *Error with code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Code == code {
		return true
	}
	return e.Cause != nil && HasCode(e.Cause, code)
}

func IsResolution(err error) bool  { return HasCode(err, ResolutionFailed) }
func IsUnsupported(err error) bool { return HasCode(err, UnsupportedOperation) }
func IsNoData(err error) bool      { return HasCode(err, NoData) }
func IsNotFound(err error) bool    { return HasCode(err, NotFound) }
