package utils

import (
	"errors"
	"fmt"
	"strings"

	"telehealth/internal/models"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("message_type", validateMessageType)
	validate.RegisterValidation("session_status", validateSessionStatus)
	validate.RegisterValidation("connection_quality", validateConnectionQuality)
	validate.RegisterValidation("object_id", validateObjectID)
}

// ValidationError represents validation error details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) []ValidationError {
	var errs []ValidationError

	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error()}}
	}
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Tag:     fe.Tag(),
			Value:   fe.Param(),
			Message: getErrorMessage(fe),
		})
	}
	return errs
}

// Validate is ValidateStruct folded into a single ErrValidationFailed.
func Validate(s interface{}) error {
	errs := ValidateStruct(s)
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Field == "" {
			parts = append(parts, e.Message)
			continue
		}
		parts = append(parts, e.Field+": "+e.Message)
	}
	return fmt.Errorf("%w: %s", models.ErrValidationFailed, strings.Join(parts, "; "))
}

// ValidationDetails flattens errs for the API error envelope.
func ValidationDetails(errs []ValidationError) map[string]string {
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		details[e.Field] = e.Message
	}
	return details
}

func validateMessageType(fl validator.FieldLevel) bool {
	return models.MessageType(fl.Field().String()).Valid()
}

func validateSessionStatus(fl validator.FieldLevel) bool {
	return models.SessionStatus(fl.Field().String()).Valid()
}

func validateConnectionQuality(fl validator.FieldLevel) bool {
	return models.ConnectionQuality(fl.Field().String()).Valid()
}

func validateObjectID(fl validator.FieldLevel) bool {
	return primitive.IsValidObjectID(fl.Field().String())
}

// getErrorMessage returns user-friendly error messages
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "This field must be at least " + fe.Param() + " characters long"
	case "max":
		return "This field must be no more than " + fe.Param() + " characters long"
	case "message_type":
		return "Message type must be text, image, file, or system"
	case "session_status":
		return "Status must be waiting, active, ended, or cancelled"
	case "connection_quality":
		return "Quality must be excellent, good, fair, or poor"
	case "object_id":
		return "This field must be a valid identifier"
	default:
		return "This field is invalid"
	}
}
