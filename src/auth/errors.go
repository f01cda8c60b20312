package auth

import "errors"

// Error values match the messages of the hosted backend verbatim so that
// application code switching on error text behaves identically against the
// emulator and the real service.
var (
	ErrInvalidEmail       = errors.New("Invalid email address")
	ErrPasswordTooShort   = errors.New("Password should be at least 6 characters")
	ErrUserExists         = errors.New("User already registered")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrNotAuthenticated   = errors.New("Not authenticated")
)
