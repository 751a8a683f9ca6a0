package core

import (
	"errors"
	"fmt"
)

// Status is the top-level outcome carried in every response envelope.
type Status int

const (
	StatusSuccess    Status = 0
	StatusFailed     Status = 1
	StatusAuthFailed Status = 2
)

// ErrorCode is the numeric error code returned to clients.
type ErrorCode int

const (
	ErrCodeParamsCheckFailed    ErrorCode = 100000
	ErrCodeServerFail           ErrorCode = 100001
	ErrCodeCurrentProcessFailed ErrorCode = 100002
	ErrCodeNotPermission        ErrorCode = 100003
	ErrCodeNeedLoginAgain       ErrorCode = 100004

	ErrCodeFileNotFound          ErrorCode = 700000
	ErrCodeFileIsConverted       ErrorCode = 700001
	ErrCodeFileConvertFailed     ErrorCode = 700002
	ErrCodeFileIsConverting      ErrorCode = 700003
	ErrCodeFileIsConvertWaiting  ErrorCode = 700004
	ErrCodeFileNotSupportConvert ErrorCode = 700005

	ErrCodeLoginGithubSuspended    ErrorCode = 800000
	ErrCodeLoginGithubURLMismatch  ErrorCode = 800001
	ErrCodeLoginGithubAccessDenied ErrorCode = 800002
)

var codeNames = map[ErrorCode]string{
	ErrCodeParamsCheckFailed:       "params_check_failed",
	ErrCodeServerFail:              "server_fail",
	ErrCodeCurrentProcessFailed:    "current_process_failed",
	ErrCodeNotPermission:           "not_permission",
	ErrCodeNeedLoginAgain:          "need_login_again",
	ErrCodeFileNotFound:            "file_not_found",
	ErrCodeFileIsConverted:         "file_is_converted",
	ErrCodeFileConvertFailed:       "file_convert_failed",
	ErrCodeFileIsConverting:        "file_is_converting",
	ErrCodeFileIsConvertWaiting:    "file_is_convert_waiting",
	ErrCodeFileNotSupportConvert:   "file_not_support_convert",
	ErrCodeLoginGithubSuspended:    "login_github_suspended",
	ErrCodeLoginGithubURLMismatch:  "login_github_url_mismatch",
	ErrCodeLoginGithubAccessDenied: "login_github_access_denied",
}

// String returns a stable snake_case name, used for logs and metric labels.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// AppError is a failed outcome that maps directly onto a response envelope.
type AppError struct {
	Status  Status
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%s]", e.Code)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// NewFailed reports a domain failure the client is expected to handle.
func NewFailed(code ErrorCode) *AppError {
	return &AppError{Status: StatusFailed, Code: code}
}

// NewParamsCheckFailed reports a malformed or rejected request body.
func NewParamsCheckFailed(message string) *AppError {
	return &AppError{Status: StatusFailed, Code: ErrCodeParamsCheckFailed, Message: message}
}

// NewServerFail wraps an unexpected infrastructure error.
func NewServerFail(message string, cause error) *AppError {
	return &AppError{Status: StatusFailed, Code: ErrCodeServerFail, Message: message, Cause: cause}
}

// NewAuthFailed reports a missing or invalid session.
func NewAuthFailed(message string) *AppError {
	return &AppError{Status: StatusAuthFailed, Code: ErrCodeNeedLoginAgain, Message: message}
}

// AsAppError extracts an *AppError from err. Errors that are not
// AppErrors become ServerFail.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewServerFail(err.Error(), err)
}
