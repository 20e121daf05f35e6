package booth

import (
	"errors"
	"fmt"
)

// Code classifies a failure. The same values are used as the "code" field
// of API error envelopes.
type Code string

const (
	CodeResourceUnavailable Code = "resource_unavailable"
	CodeAlreadyCapturing    Code = "already_capturing"
	CodeBadRequest          Code = "bad_request"
	CodeNotFound            Code = "not_found"
	CodeDecodeFailed        Code = "decode_failed"
	CodeTimeout             Code = "timeout"
	CodeCancelled           Code = "cancelled"
	CodeProcessing          Code = "processing_error"
	CodeRemote              Code = "remote_error"
	CodeUnsupported         Code = "unsupported"
	CodeInternal            Code = "internal_error"
)

// Error is a failure carrying a Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// E returns a new *Error. Package-level sentinels are built with it and
// compared with errors.Is.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an *Error with code that wraps err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Message != "":
		return e.Message
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ErrorCode() Code {
	return e.Code
}

// Coder is implemented by errors from other packages that map onto a Code.
type Coder interface {
	ErrorCode() Code
}

// CodeOf returns the Code of the first error in err's chain that has one,
// or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

var (
	ErrAlreadyCapturing    = E(CodeAlreadyCapturing, "capture already in progress")
	ErrResourceUnavailable = E(CodeResourceUnavailable, "video source not ready")
)
