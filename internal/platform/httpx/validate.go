package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Bind decodes the JSON body into target and validates it. The returned
// error wraps ErrValidation with a readable message.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: invalid request body", ErrValidation)
	}
	if err := v.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, ValidationMessage(err))
	}
	return nil
}

// ValidationMessage flattens validator errors into one line.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "email":
			parts = append(parts, fe.Field()+" must be a valid email")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "eqfield":
			parts = append(parts, fe.Field()+" must match "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
