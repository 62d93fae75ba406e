/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
server and in communication with clients (HTTP bodies and realtime `error` events).
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnknownEvent indicates that a realtime frame named an event the server does not handle.
	ErrUnknownEvent = 1008
)

// 2xxx: Messaging and Call Business Logic Errors
const (
	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrMessageContentEmpty indicates that the message content was empty after trimming.
	ErrMessageContentEmpty = 2202

	// ErrPolicyViolation indicates that the action is not allowed for the caller's role or relationship.
	ErrPolicyViolation = 2301

	// ErrRecipientNotFound indicates that the addressed user does not exist.
	ErrRecipientNotFound = 2302

	// ErrInvalidCallRoom indicates that a call room id is missing or malformed.
	ErrInvalidCallRoom = 2401

	// ErrRoomFull indicates that a call room already holds two participants.
	ErrRoomFull = 2402

	// ErrSignalTargetGone indicates that the relay target is no longer in the call room.
	ErrSignalTargetGone = 2403

	// ErrNotInCallRoom indicates that the sender is not a participant of the call room.
	ErrNotInCallRoom = 2404
)

// 3xxx: Identity Errors
const (
	// ErrMissingCredential indicates that no bearer credential was presented.
	ErrMissingCredential = 3101

	// ErrInvalidCredential indicates a malformed credential or a bad signature.
	ErrInvalidCredential = 3102

	// ErrExpiredCredential indicates that the credential is past its expiry.
	ErrExpiredCredential = 3103

	// ErrUnknownSubject indicates a valid credential whose subject has no user record.
	ErrUnknownSubject = 3104
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrMessagePersistFailed indicates that the message store rejected or failed a write.
	// The message is not considered sent.
	ErrMessagePersistFailed = 5001
)
