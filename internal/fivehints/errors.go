package fivehints

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies an error for callers that turn it into a response.
type Code string

const (
	CodeAuthInvalid     Code = "AUTH_INVALID"
	CodeAuthExpired     Code = "AUTH_EXPIRED"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUpstreamTimeout Code = "UPSTREAM_TIMEOUT"
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a typed failure. Two errors match under errors.Is when their codes
// are equal, so the sentinels below work against any message.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrAuthInvalid     = &Error{Code: CodeAuthInvalid}
	ErrAuthExpired     = &Error{Code: CodeAuthExpired}
	ErrValidation      = &Error{Code: CodeValidation}
	ErrRateLimited     = &Error{Code: CodeRateLimited}
	ErrUpstreamTimeout = &Error{Code: CodeUpstreamTimeout}
	ErrUpstreamFailure = &Error{Code: CodeUpstreamFailure}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrConflict        = &Error{Code: CodeConflict}
)

// Errorf builds a typed error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsAuth reports whether err is a token verification failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrAuthExpired)
}
