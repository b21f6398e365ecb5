package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"tripchat/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	// report fields by the name clients send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"object_id":      validateObjectID,
		"rating_value":   validateRatingValue,
		"payment_status": validatePaymentStatus,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.Field + ": " + err.Message
	}
	return strings.Join(parts, "; ")
}

// Details flattens the errors into the field map of the API error envelope.
func (v ValidationErrors) Details() map[string]string {
	details := make(map[string]string, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

// ValidateStruct returns nil when s passes every rule.
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Field: "request", Tag: "invalid", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{Field: fe.Field(), Tag: fe.Tag(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "object_id":
		return fe.Field() + " is not a valid id"
	case "rating_value":
		return fmt.Sprintf("score must be between %d and %d", utils.MinRatingScore, utils.MaxRatingScore)
	case "payment_status":
		return "status must be one of authorized, paid, failed, refunded"
	default:
		return fe.Field() + " is invalid"
	}
}

func validateObjectID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		// required decides whether empty is allowed
		return true
	}
	_, err := primitive.ObjectIDFromHex(value)
	return err == nil
}

func validateRatingValue(fl validator.FieldLevel) bool {
	score := fl.Field().Int()
	return score >= utils.MinRatingScore && score <= utils.MaxRatingScore
}

// SanitizeInput trims free text and drops control characters other than
// newlines, so reasons and comments render safely in both apps.
func SanitizeInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
