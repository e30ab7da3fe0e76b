package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
)

// V is the singleton validator instance
var V *validator.Validate

func init() {
	V = validator.New(validator.WithRequiredStructEnabled())

	// Report field names the way they are serialized
	V.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister("sales_stage", func(fl validator.FieldLevel) bool {
		return domain.SalesStage(fl.Field().String()).IsValid()
	})
	mustRegister("message_role", func(fl validator.FieldLevel) bool {
		return domain.MessageRole(fl.Field().String()).IsValid()
	})
	mustRegister("bant_dimension", func(fl validator.FieldLevel) bool {
		return domain.BANTDimension(fl.Field().String()).IsValid()
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := V.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(msgs, "; ")
}

// Validate validates a struct and returns ValidationErrors if invalid
func Validate(v any) error {
	if err := V.Struct(v); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// ValidateEntity validates a struct and wraps any failure in a Validation AppError
func ValidateEntity(resource string, v any) error {
	err := Validate(v)
	if err == nil {
		return nil
	}

	appErr := apperrors.Validation(fmt.Sprintf("invalid %s", resource)).WithError(err)
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			appErr.WithDetail(fe.Field, fe.Message)
		}
	}
	return appErr
}

// formatValidationErrors converts validator errors to ValidationErrors
func formatValidationErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		for _, e := range errs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldPath(e.Namespace()),
				Message: getErrorMessage(e),
			})
		}
		return validationErrors
	}

	// InvalidValidationError: nil or non-struct input
	return ValidationErrors{{Field: "", Message: err.Error()}}
}

// fieldPath drops the root struct name from a validator namespace
// ("Lead.signals[0].dimension" -> "signals[0].dimension")
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// getErrorMessage returns a human-readable error message for a validation error
func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "sales_stage":
		return "must be a known sales stage"
	case "message_role":
		return "must be one of: user assistant system human"
	case "bant_dimension":
		return "must be one of: budget authority need timeline"
	default:
		return fmt.Sprintf("failed validation: %s", e.Tag())
	}
}

// IsValidationError checks if an error is a ValidationErrors
func IsValidationError(err error) bool {
	var verrs ValidationErrors
	return errors.As(err, &verrs)
}
