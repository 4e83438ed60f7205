package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
// Fields carries field-scoped validation messages so clients can attach an
// error to the offending input rather than showing a generic failure.
type AppError struct {
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Fields     map[string][]string `json:"fields,omitempty"`
	StatusCode int                 `json:"-"`
	Internal   error               `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid username or password",
		StatusCode: http.StatusUnauthorized,
	}

	ErrAccountLocked = &AppError{
		Code:       "ACCOUNT_LOCKED",
		Message:    "Account temporarily locked after repeated failures",
		StatusCode: http.StatusLocked,
	}

	// ErrStepUpRequired signals that the caller must confirm their password
	// before performing a sensitive account-security change.
	ErrStepUpRequired = &AppError{
		Code:       "PASSWORD_CONFIRMATION_REQUIRED",
		Message:    "Password confirmation required",
		StatusCode: http.StatusLocked,
	}

	ErrTwoFactorAlreadyEnabled = &AppError{
		Code:       "TWO_FACTOR_ALREADY_ENABLED",
		Message:    "Two-factor authentication is already enabled",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrTwoFactorNotEnabled = &AppError{
		Code:       "TWO_FACTOR_NOT_ENABLED",
		Message:    "Two-factor authentication is not enabled",
		StatusCode: http.StatusUnprocessableEntity,
	}

	// ErrChallengeInvalid covers expired, unknown, or no-longer-applicable
	// login challenges. Deliberately indistinguishable from other validation
	// failures so the verification boundary leaks nothing.
	ErrChallengeInvalid = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "The provided two-factor challenge is invalid",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "The resource was modified concurrently, please retry",
		StatusCode: http.StatusConflict,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewValidation builds a 422 error scoped to a single input field.
func NewValidation(field, message string) *AppError {
	return &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    message,
		Fields:     map[string][]string{field: {message}},
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewBadRequest wraps malformed payload errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}
