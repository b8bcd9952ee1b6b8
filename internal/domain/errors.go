package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrStoreFailure      = errors.New("store failure")
	ErrDataInconsistency = errors.New("data inconsistency")
	ErrInvalidRequest    = errors.New("invalid request")
)
