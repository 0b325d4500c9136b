package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrStoreUnavailable = errors.New("conflict store unavailable")
	ErrMalformedField   = errors.New("malformed tracked field")
	ErrUnauthorized     = errors.New("unauthorized")
)
