package auth

import "errors"

var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrInvalidRefreshToken = errors.New("auth: invalid or expired refresh token")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrDuplicateGrant      = errors.New("auth: duplicate grant")
	ErrNotFound            = errors.New("auth: not found")
	ErrInvalidInput        = errors.New("auth: invalid input")
	ErrUnavailable         = errors.New("auth: storage unavailable")
)
