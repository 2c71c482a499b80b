// Package errorx implements registered error codes that carry an HTTP
// status and a wire-level error type alongside a human message.
//
// Every module registers its codes in an init() using MustRegister; at
// the HTTP boundary ParseCoder maps any error back to its registered
// coder so the response status and body shape are consistent.
package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Coder defines an error code with its HTTP mapping.
type Coder interface {
	// Code returns the integer code of this error.
	Code() int
	// HTTPStatus returns the associated HTTP status.
	HTTPStatus() int
	// String returns the external, user-facing message.
	String() string
	// Reference returns a document reference for the error, if any.
	Reference() string
}

var (
	codes   = map[int]Coder{}
	codeMux sync.RWMutex
)

// unknownCoder is returned by ParseCoder for unregistered errors.
var unknownCoder = defaultCoder{
	code: 1, http: http.StatusInternalServerError,
	msg: "An internal server error occurred",
}

type defaultCoder struct {
	code int
	http int
	msg  string
	ref  string
}

func (c defaultCoder) Code() int         { return c.code }
func (c defaultCoder) HTTPStatus() int   { return c.http }
func (c defaultCoder) String() string    { return c.msg }
func (c defaultCoder) Reference() string { return c.ref }

// NewCoder builds a Coder from its parts.
func NewCoder(code, httpStatus int, msg string) Coder {
	return defaultCoder{code: code, http: httpStatus, msg: msg}
}

// Register registers a coder, overwriting any previous registration.
func Register(coder Coder) {
	if coder.Code() == 0 {
		panic("code '0' is reserved as unknown error code")
	}
	codeMux.Lock()
	defer codeMux.Unlock()
	codes[coder.Code()] = coder
}

// MustRegister registers a coder and panics when the code is already taken.
func MustRegister(coder Coder) {
	if coder.Code() == 0 {
		panic("code '0' is reserved as unknown error code")
	}
	codeMux.Lock()
	defer codeMux.Unlock()
	if _, ok := codes[coder.Code()]; ok {
		panic(fmt.Sprintf("code %d already registered", coder.Code()))
	}
	codes[coder.Code()] = coder
}

// withCode is an error annotated with a registered code.
type withCode struct {
	err   error
	code  int
	cause error
}

func (w *withCode) Error() string { return w.err.Error() }

// Unwrap returns the wrapped cause, if any.
func (w *withCode) Unwrap() error { return w.cause }

// WithCode creates a new error with the given code and message.
func WithCode(code int, format string, args ...any) error {
	return &withCode{
		err:  fmt.Errorf(format, args...),
		code: code,
	}
}

// WrapC wraps an error with a code and an additional message.
func WrapC(err error, code int, format string, args ...any) error {
	if err == nil {
		return WithCode(code, format, args...)
	}
	return &withCode{
		err:   fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err),
		code:  code,
		cause: err,
	}
}

// ParseCoder walks the error chain for a coded error and returns its
// registered Coder. Unregistered or plain errors map to the unknown coder.
func ParseCoder(err error) Coder {
	if err == nil {
		return nil
	}
	var coded *withCode
	if errors.As(err, &coded) {
		codeMux.RLock()
		defer codeMux.RUnlock()
		if coder, ok := codes[coded.code]; ok {
			return coder
		}
	}
	return unknownCoder
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code int) bool {
	var coded *withCode
	if errors.As(err, &coded) {
		if coded.code == code {
			return true
		}
		if coded.cause != nil {
			return IsCode(coded.cause, code)
		}
	}
	return false
}
