package apierr

import (
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
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

// FromError picks an HTTP status from the aggregate code carried by err.
// fallbackCode is used as the API code when err carries none.
func FromError(err error, fallbackCode string) *Error {
	if err == nil {
		return nil
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation, domainagg.CodeInvariantViolation:
		return New(http.StatusBadRequest, string(domainagg.CodeOf(err)), err)
	case domainagg.CodeNotFound:
		return New(http.StatusNotFound, string(domainagg.CodeNotFound), err)
	case domainagg.CodeConflict:
		return New(http.StatusConflict, string(domainagg.CodeConflict), err)
	case domainagg.CodePreconditionFailed:
		return New(http.StatusPreconditionFailed, string(domainagg.CodePreconditionFailed), err)
	case domainagg.CodeRetryable:
		return New(http.StatusServiceUnavailable, string(domainagg.CodeRetryable), err)
	default:
		return New(http.StatusInternalServerError, fallbackCode, err)
	}
}
