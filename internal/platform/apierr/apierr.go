package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// StatusFor maps a messaging error code to an HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeAuthentication:
		return http.StatusUnauthorized
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTransientStore, domain.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// From classifies err. Untyped errors become internal errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	code := domain.CodeOf(err)
	if code == "" {
		code = domain.CodeInternal
	}
	return New(StatusFor(code), string(code), err)
}
