package auth

import "errors"

var (
	ErrMissingSecret      = errors.New("auth: signing secret is required")
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")

	ErrForbidden = errors.New("auth: access denied")
)
