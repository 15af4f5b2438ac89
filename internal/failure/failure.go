// Package failure defines the error taxonomy used across simflow.
//
// Every fatal condition is returned as an *Error carrying one of four kinds:
//   - Configuration: missing or invalid static configuration
//   - Validation: a bad submission parameter (named field and value)
//   - State: unexpected filesystem state (folder exists, predecessor missing, ...)
//   - ExternalTool: a helper script reported an error or wrote to stderr
//
// Errors are never retried. They travel up to the CLI which logs them and exits non-zero.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindValidation
	KindState
	KindExternalTool
)

// String returns the kind's display name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindValidation:
		return "validation error"
	case KindState:
		return "state error"
	case KindExternalTool:
		return "external tool error"
	default:
		return "error"
	}
}

// Error is a classified workflow failure.
type Error struct {
	Kind  Kind
	Field string // parameter or config key, when relevant
	Value string // offending value, when relevant
	Msg   string
	Err   error // wrapped cause
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" (%s", e.Field))
		if e.Value != "" {
			sb.WriteString(fmt.Sprintf("=%q", e.Value))
		}
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration reports an invalid or missing static configuration value.
func Configuration(field, value, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports an invalid submission parameter.
func Validation(field, value, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

// State reports unexpected filesystem state.
func State(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Msg: fmt.Sprintf(format, args...)}
}

// ExternalTool reports a failure of an invoked helper.
func ExternalTool(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExternalTool, Msg: fmt.Sprintf(format, args...)}
}

// WrapExternalTool reports err as an external tool failure. An err that is
// already classified keeps its kind and gains the message as context.
func WrapExternalTool(err error, format string, args ...interface{}) error {
	if KindOf(err) != 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return ExternalTool(format, args...).Wrap(err)
}

// Wrap attaches a cause to a classified error and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Is reports whether err is a *Error of the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
