package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/lucasberan/keygate/pkg/errors"
	"github.com/lucasberan/keygate/pkg/response"
	appValidator "github.com/lucasberan/keygate/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation
// rules. When validation fails, a field-scoped 422 response is written and
// false is returned so handlers can bail out early.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err))
		return false
	}

	return true
}

func validationError(err error) *appErrors.AppError {
	ve, ok := err.(appValidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}

	fields := make(map[string][]string, len(ve))
	for _, failure := range ve {
		fields[failure.Field] = append(fields[failure.Field], validationMessage(failure))
	}

	return &appErrors.AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "The given data was invalid",
		Fields:     fields,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func validationMessage(failure appValidator.ValidationError) string {
	switch failure.Tag {
	case "required":
		return fmt.Sprintf("The %s field is required", failure.Field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address", failure.Field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters", failure.Field, failure.Param)
	case "max":
		return fmt.Sprintf("The %s field must be at most %s characters", failure.Field, failure.Param)
	default:
		if failure.Param != "" {
			return fmt.Sprintf("The %s field failed validation: %s=%s", failure.Field, failure.Tag, failure.Param)
		}
		return fmt.Sprintf("The %s field failed validation: %s", failure.Field, failure.Tag)
	}
}
