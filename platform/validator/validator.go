// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"norskform_backend/platform/phone"
)

var postnrPattern = regexp.MustCompile(`^\d{4}$`)

// Validator wraps the go-playground validator for structured validation.
// Using a struct allows for dependency injection and easier testing.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator with the domain rules registered:
// "postnr" (exactly 4 digits) and "norphone" (Norwegian subscriber number
// without country prefix).
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("postnr", func(fl validator.FieldLevel) bool {
		return postnrPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("norphone", func(fl validator.FieldLevel) bool {
		national, err := phone.NormalizeNational(fl.Field().String())
		if err != nil {
			return false
		}
		return phone.IsValidSubscriber(national)
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
