// Package apperror defines the errors the dashboard API reports to clients.
// Anything that is not an AppError renders as INTERNAL_ERROR.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeInternal        = "INTERNAL_ERROR"   // 500
	CodeFeedUnavailable = "FEED_UNAVAILABLE" // 503, merged view not ready
	CodeValidation      = "VALIDATION_ERROR" // 400
	CodeFuturePeriod    = "FUTURE_PERIOD"    // 422, month after the current one
	CodeNotFound        = "NOT_FOUND"        // 404
)

// AppError carries a code, a client-safe message and optional details.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`

	// Err is logged but never rendered.
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Problem maps any error to the AppError rendered for it. The returned
// value is a copy, so callers may add details without touching err.
func Problem(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		p := *appErr
		if len(appErr.Details) > 0 {
			p.Details = make(map[string]any, len(appErr.Details))
			for k, v := range appErr.Details {
				p.Details[k] = v
			}
		}
		return &p
	}
	return NewInternal(err)
}

// NewValidation creates a 400 error.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewMissingParam reports an empty required scope parameter.
func NewMissingParam(name string) *AppError {
	return NewValidation(name+" is required").WithDetail("param", name)
}

// NewInvalidMonth reports a month that is not in YYYY-MM form.
func NewInvalidMonth(text string, cause error) *AppError {
	e := NewValidation("month must be YYYY-MM").WithDetail("month", text)
	e.Err = cause
	return e
}

// NewNotFound creates a 404 error.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewFuturePeriod is returned when a month after the current one is queried.
// Balances of future months are not defined.
func NewFuturePeriod(target, current string) *AppError {
	return &AppError{
		Code:       CodeFuturePeriod,
		Message:    fmt.Sprintf("Period %s is after the current period %s", target, current),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"target": target, "current": current},
	}
}

// NewFeedUnavailable is returned while the merged feed view is not ready.
func NewFeedUnavailable(pending []string) *AppError {
	return &AppError{
		Code:       CodeFeedUnavailable,
		Message:    "Stock feeds are still loading",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"pending": pending},
	}
}

// NewInternal hides err behind a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
