package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// FieldError describes the first field of a message that failed validation.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message())
}

// Message renders the failed constraint for display.
func (e *FieldError) Message() string {
	switch e.Tag {
	case "required", "required_if":
		return "is required"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "gt":
		return "must be greater than " + e.Param
	case "gte":
		return "must be at least " + e.Param
	case "max":
		return "must be at most " + e.Param + " characters"
	case "oneof":
		return "must be one of: " + e.Param
	case "numeric":
		return "must be a decimal number"
	case "nefield":
		return "must differ from " + e.Param
	default:
		return "failed " + e.Tag + " validation"
	}
}

// Validate checks msg against its struct tags and returns a *FieldError
// for the first violation.
func Validate(msg any) error {
	err := getValidator().Struct(msg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return fmt.Errorf("failed to validate message: %w", err)
}

// jsonFieldName reports fields by their wire name.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
