// Package errs defines the errors handlers return to the error middleware.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error is an error with the status code it should be answered with.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Source  string `json:"-"`

	internal bool
}

// New constructs an Error answered with code and err's message.
func New(code int, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Source: caller()}
}

// Newf is New with a formatted message.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Source: caller()}
}

// NewInternal creates an error whose message is logged but not shown to
// the client.
func NewInternal(err error) *Error {
	return &Error{
		Code:     http.StatusInternalServerError,
		Message:  err.Error(),
		Source:   caller(),
		internal: true,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// IsInternal reports whether the message must be hidden from the client.
func (e *Error) IsInternal() bool {
	return e.internal
}

// caller names the function two frames up as pkg.Func:line.
func caller() string {
	pc, _, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}

	name := runtime.FuncForPC(pc).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	return fmt.Sprintf("%s:%d", name, line)
}

// FieldError is a validation failure of one request field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors collects the validation failures of a request.
type FieldErrors []FieldError

// NewFieldError creates FieldErrors holding a single failure.
func NewFieldError(field string, err error) FieldErrors {
	return FieldErrors{{Field: field, Err: err.Error()}}
}

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}

	return strings.Join(parts, "; ")
}

// Fields maps each failing field to its message.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, f := range fe {
		m[f.Field] = f.Err
	}

	return m
}

// AsFieldErrors extracts FieldErrors from err's chain.
func AsFieldErrors(err error) (FieldErrors, bool) {
	return errors.AsType[FieldErrors](err)
}
