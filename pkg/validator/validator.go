package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator implements echo.Validator using go-playground/validator
type CustomValidator struct {
	v *validator.Validate
}

// New creates a new CustomValidator instance
func New() *CustomValidator {
	v := validator.New()
	v.RegisterValidation("objectkeysafe", objectKeySafe)
	return &CustomValidator{v: v}
}

// Validate performs struct validation
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

// objectKeySafe rejects values that would break out of their object-store
// prefix when embedded in a key.
func objectKeySafe(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return !strings.ContainsAny(value, "/\\") && !strings.Contains(value, "..")
}
