/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its CustomError template (message and HTTP status).
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnknownEvent:          {Code: ErrUnknownEvent, Message: "Unsupported event: %s.", Status: http.StatusBadRequest},

	// 2xxx: Messaging and Call Business Logic Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes).", Status: http.StatusBadRequest},
	ErrMessageContentEmpty:   {Code: ErrMessageContentEmpty, Message: "Message cannot be empty.", Status: http.StatusBadRequest},
	ErrPolicyViolation:       {Code: ErrPolicyViolation, Message: "%s", Status: http.StatusForbidden},
	ErrRecipientNotFound:     {Code: ErrRecipientNotFound, Message: "Recipient not found.", Status: http.StatusNotFound},
	ErrInvalidCallRoom:       {Code: ErrInvalidCallRoom, Message: "Invalid call room id.", Status: http.StatusBadRequest},
	ErrRoomFull:              {Code: ErrRoomFull, Message: "This call already has two participants.", Status: http.StatusConflict},
	ErrSignalTargetGone:      {Code: ErrSignalTargetGone, Message: "The other participant has left the call.", Status: http.StatusGone},
	ErrNotInCallRoom:         {Code: ErrNotInCallRoom, Message: "You are not a participant of this call.", Status: http.StatusForbidden},

	// 3xxx: Identity Errors
	ErrMissingCredential: {Code: ErrMissingCredential, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredential: {Code: ErrInvalidCredential, Message: "Your session is invalid. Please sign in again.", Status: http.StatusUnauthorized},
	ErrExpiredCredential: {Code: ErrExpiredCredential, Message: "Your session has expired. Please sign in again.", Status: http.StatusUnauthorized},
	ErrUnknownSubject:    {Code: ErrUnknownSubject, Message: "Account not found.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:              {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrMessagePersistFailed: {Code: ErrMessagePersistFailed, Message: "Failed to send message. Please try again.", Status: http.StatusServiceUnavailable},
}
