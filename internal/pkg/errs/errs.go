package errs

import (
	"fmt"
	"net/http"
	"strings"

	"parley/internal/pkg/logx"
)

// CustomError is the error type surfaced by every handler and service.
// It carries a business code, a user-facing message, and the HTTP status
// the boundary should answer with.
type CustomError struct {
	// Code is the business error code (see error_codes.go).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status code corresponding to this error.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError builds a *CustomError from a predefined code. Optional details are
// applied printf-style when the message template has placeholders. Unknown
// codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	template, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("unknown error code %d requested", code),
			"errs.NewError called with a code missing from errorMap",
			"requested_code", code,
		)

		unknown := errorMap[ErrUnknown]
		return &unknown
	}

	customErr := template

	if customErr.Status == 0 {
		customErr.Status = http.StatusInternalServerError
	}

	if code == ErrUnknown && len(details) > 0 {
		if cause, ok := details[0].(error); ok {
			logx.Error(cause, "handling ErrUnknown with underlying error")
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn("error details provided but message template has no placeholders; details ignored",
				"code", code)
		}
	}

	return &customErr
}
