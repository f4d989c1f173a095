package auth

import "errors"

var (
	ErrNotFound          = errors.New("auth: not found")
	ErrConflict          = errors.New("auth: resource conflict")
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrUnauthorized      = errors.New("auth: unauthorized")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrUnknownPermission = errors.New("auth: unknown permission code")
	ErrDuplicateCode     = errors.New("auth: duplicate permission code")
	ErrStoreUnavailable  = errors.New("auth: store unavailable")
)
