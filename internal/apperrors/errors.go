// Package apperrors defines the error taxonomy shared by the query, orchestration and cache layers.
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeModelLoadFailure  Code = "MODEL_LOAD_FAILURE"
	CodeNetworkFailure    Code = "NETWORK_FAILURE"
	CodeNoTokenFound      Code = "NO_TOKEN_FOUND"
	CodeValidationFailure Code = "VALIDATION_FAILURE"
	CodeNotFound          Code = "NOT_FOUND"
)

type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so errors.Is(err, ErrNetwork) works on wrapped values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrModelLoad  = &Error{Code: CodeModelLoadFailure}
	ErrNetwork    = &Error{Code: CodeNetworkFailure}
	ErrNoToken    = &Error{Code: CodeNoTokenFound}
	ErrValidation = &Error{Code: CodeValidationFailure}
	ErrNotFound   = &Error{Code: CodeNotFound}
)

func ModelLoadFailure(msg string, err error) *Error {
	return &Error{Code: CodeModelLoadFailure, Message: msg, Err: err}
}

func NetworkFailure(msg string, err error) *Error {
	return &Error{Code: CodeNetworkFailure, Message: msg, Retryable: true, Err: err}
}

func NoTokenFound(msg string, err error) *Error {
	return &Error{Code: CodeNoTokenFound, Message: msg, Err: err}
}

func ValidationFailure(msg string) *Error {
	return &Error{Code: CodeValidationFailure, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsRetryable reports whether err is worth another attempt. Unclassified errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}
