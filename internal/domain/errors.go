package domain

import "errors"

type ErrorCode string

const (
	CodeInvalidAssertion ErrorCode = "INVALID_ASSERTION"
	CodeBanned           ErrorCode = "BANNED"
	CodeInvalidRefresh   ErrorCode = "INVALID_REFRESH"
	CodeRefreshExpired   ErrorCode = "REFRESH_EXPIRED"
	CodeDeviceMismatch   ErrorCode = "DEVICE_MISMATCH"
	CodeConfig           ErrorCode = "CONFIG_ERROR"
	CodeStorage          ErrorCode = "STORAGE_ERROR"
	CodeRotationFailed   ErrorCode = "ROTATION_FAILED"
	CodeTokenExpired     ErrorCode = "TOKEN_EXPIRED"
	CodeTokenInvalid     ErrorCode = "TOKEN_INVALID"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// Error is a tagged session error. Two Errors match under errors.Is when their codes are equal,
// so callers compare against the sentinels below regardless of the wrapped cause.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Retriable reports whether the client may retry the same request with backoff.
func (e *Error) Retriable() bool {
	return e.Code == CodeStorage || e.Code == CodeRotationFailed || e.Code == CodeRateLimited
}

var (
	ErrInvalidAssertion = &Error{Code: CodeInvalidAssertion}
	ErrBanned           = &Error{Code: CodeBanned}
	ErrInvalidRefresh   = &Error{Code: CodeInvalidRefresh}
	ErrRefreshExpired   = &Error{Code: CodeRefreshExpired}
	ErrDeviceMismatch   = &Error{Code: CodeDeviceMismatch}
	ErrConfig           = &Error{Code: CodeConfig}
	ErrStorage          = &Error{Code: CodeStorage}
	ErrRotationFailed   = &Error{Code: CodeRotationFailed}
	ErrTokenExpired     = &Error{Code: CodeTokenExpired}
	ErrTokenInvalid     = &Error{Code: CodeTokenInvalid}
	ErrValidation       = &Error{Code: CodeValidation}
	ErrUserNotFound     = &Error{Code: CodeUserNotFound}
	ErrRateLimited      = &Error{Code: CodeRateLimited}
)

// Wrap tags err with code. A nil err yields the bare code.
func Wrap(code ErrorCode, err error) error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the outermost code from err, or "" for untagged errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetriable reports whether err carries a retriable code.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable()
	}
	return false
}
