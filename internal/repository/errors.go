package repository

import "errors"

var (
	// ErrNotFound is returned when no link has the requested short code.
	ErrNotFound = errors.New("link not found")

	// ErrDuplicateCode is returned by Insert when the short code is taken.
	ErrDuplicateCode = errors.New("short code already exists")
)
