// Package apperr holds sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrNoDocument    = errors.New("no document open")
	ErrBusy          = errors.New("operation in progress")
	ErrInvalid       = errors.New("invalid argument")
)
