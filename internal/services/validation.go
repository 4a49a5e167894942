package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error      string            `json:"error"`                // Error message
	Details    map[string]string `json:"details,omitempty"`    // Validation details
	RetryAfter int               `json:"retryAfter,omitempty"` // Seconds until the request may be retried
}

var phoneRE = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRE.MatchString(fl.Field().String())
	})
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ValidateVar validates a single value against a tag.
func (vh *ValidationHelper) ValidateVar(field any, tag string) error {
	return vh.validator.Var(field, tag)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message, Details: ValidationDetails(validationErr)}
	json.NewEncoder(w).Encode(errorResp)
}

// ValidationDetails maps each failed field to a message. Non-validation
// errors yield nil.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
	}
	return details
}
