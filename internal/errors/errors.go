package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError carries a stable code alongside the human-readable message
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code, so wrapped sentinels
// compare equal through errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrImageNotFound   = &AppError{Code: "IMAGE_001", Message: "image not found"}
	ErrImageUnreadable = &AppError{Code: "IMAGE_002", Message: "image could not be decoded"}

	ErrDetectionExhausted = &AppError{Code: "DETECT_001", Message: "no QR code found in image"}
	ErrDetectionTimeout   = &AppError{Code: "DETECT_002", Message: "QR detection deadline exceeded"}

	ErrPayloadEmpty = &AppError{Code: "PAYLOAD_001", Message: "payload contains no key:value fields"}
	ErrPayloadFault = &AppError{Code: "PAYLOAD_002", Message: "payload decoding failed"}

	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Wrap attaches cause to a copy of the sentinel so the sentinel itself stays immutable.
func Wrap(sentinel *AppError, cause error) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}
