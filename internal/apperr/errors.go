// Package apperr holds sentinel errors shared across service layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPath     = errors.New("invalid path")
	ErrSessionNotFound = errors.New("render session not found")
	ErrElementNotFound = errors.New("render element not found")
)
