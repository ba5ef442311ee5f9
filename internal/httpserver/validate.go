package httpserver

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

// bind decodes the request into req and runs the struct validation tags.
// The returned error is meant for the client as is.
func bind(c echo.Context, req any) (string, error) {
	if err := c.Bind(req); err != nil {
		return "invalid body", err
	}
	if err := c.Validate(req); err != nil {
		return err.Error(), err
	}
	return "", nil
}
