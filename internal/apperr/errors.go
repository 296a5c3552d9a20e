package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidMove   = errors.New("invalid move")
	ErrOptimizer     = errors.New("route optimizer failed")
)
