// Package errs provides structured error types and helpers shared across the pool stack.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a pool error category.
type Code string

const (
	// CodeTimeout indicates an acquire wait or dial deadline expired.
	CodeTimeout Code = "timeout"
	// CodeClosed indicates the pool is shut down and cannot service requests.
	CodeClosed Code = "closed"
	// CodeInvalid indicates invalid input or configuration provided by the caller.
	CodeInvalid Code = "invalid"
	// CodeNetwork indicates a transport failure while dialing or validating a connection.
	CodeNetwork Code = "network"
	// CodeUnavailable indicates a collaborator is temporarily unable to accept work.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the pool stack.
type E struct {
	Scope       string
	Code        Code
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the originating scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:       strings.TrimSpace(scope),
		Code:        code,
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the pool error code from err, or an empty Code when err is
// not an envelope produced by this package.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return Code("")
}

// IsTimeout reports whether err carries the timeout code.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// IsClosed reports whether err carries the closed code.
func IsClosed(err error) bool { return CodeOf(err) == CodeClosed }
