package errs

import "net/http"

// errorMap holds the message template and HTTP status for every error code.
// Conflicts surface as 400 rather than 409 to keep the public API stable
// with the clients that already consume it.
var errorMap = map[int]CustomError{
	// 1xxx: general request handling errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Request body is not valid JSON.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: room and message errors
	ErrRoomNameTaken:    {Code: ErrRoomNameTaken, Message: "A room with this name already exists.", Status: http.StatusBadRequest},
	ErrRoomNotFound:     {Code: ErrRoomNotFound, Message: "Room not found.", Status: http.StatusNotFound},
	ErrMessageTextEmpty: {Code: ErrMessageTextEmpty, Message: "Message text is required.", Status: http.StatusBadRequest},
	ErrMessageTooLong:   {Code: ErrMessageTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},

	// 3xxx: user and authentication errors
	ErrInvalidUsername:    {Code: ErrInvalidUsername, Message: "Invalid username.", Status: http.StatusBadRequest},
	ErrInvalidEmail:       {Code: ErrInvalidEmail, Message: "Invalid email address.", Status: http.StatusBadRequest},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Message: "Invalid password.", Status: http.StatusBadRequest},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "Username or email already exists.", Status: http.StatusBadRequest},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusNotFound},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: internal errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
