/*
Package req binds and validates incoming JSON request bodies.

Unknown fields, trailing content, and struct-level validation failures are
all rejected at the boundary so handlers only see well-formed input.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"parley/internal/pkg/errs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the request body into dst and runs struct validation on
// the result. The decoder disallows unknown fields and trailing content.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	if err := validate.Struct(dst); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}
