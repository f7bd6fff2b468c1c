package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates another account already holds the email.
	ErrDuplicateEmail = errors.New("repository: duplicate email")
	// ErrInvalidArgument indicates the caller supplied an unusable entity.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
