package serr

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// ServiceError carries a user-facing message and the HTTP status it maps to.
// The wrapped error is only logged.
type ServiceError struct {
	Err        error
	Msg        string
	StackTrace string
	StatusCode int
	Env        map[string]string
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
	}
}

func NotFound(err error, msg string, args ...any) *ServiceError {
	return NewServiceError(err, http.StatusNotFound, msg, args...)
}

func BadRequest(err error, msg string, args ...any) *ServiceError {
	return NewServiceError(err, http.StatusBadRequest, msg, args...)
}

func Unauthorized(err error, msg string, args ...any) *ServiceError {
	return NewServiceError(err, http.StatusUnauthorized, msg, args...)
}

// With records a diagnostic key/value and returns the same error.
func (e *ServiceError) With(key string, val any) *ServiceError {
	e.Env[key] = fmt.Sprint(val)
	return e
}

func (e *ServiceError) Error() string {
	return e.Msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
