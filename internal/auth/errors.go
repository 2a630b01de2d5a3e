package auth

import "errors"

var (
	// ErrAuthentication covers unknown users and wrong passwords alike;
	// callers are not told which.
	ErrAuthentication = errors.New("auth: invalid credentials")
	// ErrLocked means the account is inside its lockout window. Retrying
	// before the window elapses cannot succeed.
	ErrLocked       = errors.New("auth: too many attempts")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidToken = errors.New("auth: invalid token")
)
