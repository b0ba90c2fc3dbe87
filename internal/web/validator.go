package web

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// appValidator wraps go-playground/validator for echo.
type appValidator struct {
	validator *validator.Validate
}

func newValidator() *appValidator {
	return &appValidator{validator: validator.New()}
}

// Validate validates a struct using go-playground/validator tags.
func (v *appValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return &ValidationError{Field: "body", Message: "invalid request body"}
	}
	return nil
}
