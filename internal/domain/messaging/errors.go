package messaging

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics for the messaging core.
type ErrorCode string

const (
	CodeAuthentication ErrorCode = "authentication"
	CodeValidation     ErrorCode = "validation"
	CodeNotFound       ErrorCode = "not_found"
	CodeForbidden      ErrorCode = "forbidden"
	CodeConflict       ErrorCode = "conflict"
	CodeTransientStore ErrorCode = "transient_store"
	CodeTransport      ErrorCode = "transport"
	CodePartialFailure ErrorCode = "partial_failure"
	CodeInternal       ErrorCode = "internal"
)

// Error is the canonical messaging error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with a code. Errors that already carry a code keep it.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return NewError(code, op, err.Error(), err)
}

func AuthenticationError(op string) error {
	return NewError(CodeAuthentication, op, "please sign in", nil)
}

func ValidationError(op, msg string) error {
	return NewError(CodeValidation, op, msg, nil)
}

func NotFoundError(op, msg string) error {
	return NewError(CodeNotFound, op, msg, nil)
}

func ForbiddenError(op, msg string) error {
	return NewError(CodeForbidden, op, msg, nil)
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) ErrorCode {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
