package user

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingSecret   = errors.New("jwt secret is not set")
	ErrServiceKeyUnset = errors.New("service key hash is not set")
)
