package repo

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a row with the same unique key already exists.
	ErrDuplicate = errors.New("duplicate")
)
