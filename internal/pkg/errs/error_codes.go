/*
Package errs defines the application error type and the error code constants
shared between the HTTP surface and the real-time channel.
*/
package errs

// 1xxx: general request handling errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates an unsupported Content-Type header.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates a malformed request body.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after the JSON body.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates the per-IP request budget was exhausted.
	ErrRateLimitExceeded = 1005
)

// 2xxx: room and message errors
const (
	// ErrRoomNameTaken indicates a room with the requested name already exists.
	ErrRoomNameTaken = 2101

	// ErrRoomNotFound indicates a lookup miss on the room id.
	ErrRoomNotFound = 2102

	// ErrMessageTextEmpty indicates a message post with no text.
	ErrMessageTextEmpty = 2201

	// ErrMessageTooLong indicates the message text exceeded the size limit.
	ErrMessageTooLong = 2202
)

// 3xxx: user and authentication errors
const (
	// ErrInvalidUsername indicates the username failed format validation.
	ErrInvalidUsername = 3001

	// ErrInvalidEmail indicates the email address failed format validation.
	ErrInvalidEmail = 3002

	// ErrInvalidPassword indicates the password failed length validation.
	ErrInvalidPassword = 3003

	// ErrUserAlreadyExists indicates the username or email is already taken.
	ErrUserAlreadyExists = 3004

	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = 3005

	// ErrUserNotFound indicates a lookup miss on the user id.
	ErrUserNotFound = 3006

	// ErrUnauthorized indicates a request that requires an authenticated
	// identity arrived without one.
	ErrUnauthorized = 3007
)

// 5xxx: internal errors
const (
	// ErrUnknown is the catch-all for unclassified server failures.
	ErrUnknown = 5000
)
