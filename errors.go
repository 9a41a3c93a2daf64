package webui

import (
	"errors"
	"fmt"
	"strings"
)

const (
	statusBadRequest          = 400
	statusNotFound            = 404
	statusInternalServerError = 500
	statusServiceUnavailable  = 503
	statusGatewayTimeout      = 504
)

// Error is the error type used throughout the library. It carries the
// component that produced it, an HTTP-like status code, and whether the
// condition is temporary (retryable).
type Error struct {
	Component string      `json:"component,omitempty"`
	Message   string      `json:"message"`
	Code      int         `json:"code"`
	Temporary bool        `json:"temporary"`
	Details   interface{} `json:"details,omitempty"`
	cause     error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s (code: %d)", e.Component, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Component: e.Component,
			Message:   fmt.Sprintf("%s: %s", message, e.Message),
			Code:      e.Code,
			Temporary: e.Temporary,
			Details:   e.Details,
			cause:     e.cause,
		}
	}
	return &Error{
		Message: fmt.Sprintf("%s: %s", message, err),
		Code:    statusInternalServerError,
		cause:   err,
	}
}

func wrapF(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return wrap(err, fmt.Sprintf(format, args...))
}

func badRequest(component, message string) *Error {
	return &Error{
		Message:   message,
		Code:      statusBadRequest,
		Component: component,
		Temporary: false,
	}
}

func notFound(component, message string) *Error {
	return &Error{
		Message:   message,
		Code:      statusNotFound,
		Component: component,
		Temporary: false,
	}
}

func internal(component, message string) *Error {
	return &Error{
		Message:   message,
		Code:      statusInternalServerError,
		Component: component,
		Temporary: false,
	}
}

func unavailable(component, message string) *Error {
	return &Error{
		Message:   message,
		Code:      statusServiceUnavailable,
		Component: component,
		Temporary: true,
	}
}

func timeout(component, message string) *Error {
	return &Error{
		Message:   message,
		Code:      statusGatewayTimeout,
		Component: component,
		Temporary: true,
	}
}

// MultiError aggregates several errors from independent operations, such as
// close callbacks that each may fail.
type MultiError struct {
	errors []error
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}
	messages := make([]string, len(m.errors))

	for i, err := range m.errors {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

func (m *MultiError) Unwrap() []error {
	return m.errors
}

func addError(base, next error) error {
	if base == nil {
		return next
	}
	if next == nil {
		return base
	}

	var me *MultiError
	if errors.As(base, &me) {
		me.errors = append(me.errors, next)

		return me
	}
	return &MultiError{errors: []error{base, next}}
}
