/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the error interface and
carries a business code, a user-facing message and an HTTP status code.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mentorlink/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// cause is the underlying error, kept for logs and errors.Is/As; never shown to clients.
	cause error
}

// Error implements the error interface.
func (e CustomError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("Error Code %d (HTTP %d): %s: %v", e.Code, e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap exposes the underlying cause.
func (e CustomError) Unwrap() error {
	return e.cause
}

// NewError constructs a *CustomError from a predefined code.
// The optional details are printf-style arguments for the message template.
// An unknown code yields ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap builds a *CustomError for code and records cause as its underlying error.
func Wrap(code int, cause error, details ...any) *CustomError {
	customErr := NewError(code, details...)
	customErr.cause = cause
	return customErr
}

// Policy builds an ErrPolicyViolation carrying a specific reason.
func Policy(reason string) *CustomError {
	return NewError(ErrPolicyViolation, reason)
}

// From converts any error into a *CustomError. Errors that are not CustomErrors
// become ErrUnknown with the original kept as cause.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	return Wrap(ErrUnknown, err)
}

// CodeOf returns the business code of err, or 0 when err is nil.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	return From(err).Code
}

// IsAuth reports whether err belongs to the identity (3xxx) range.
func IsAuth(err error) bool {
	code := CodeOf(err)
	return code >= 3000 && code < 4000
}
