package domain

import "errors"

var (
	// ErrUnauthenticated is returned for mutations attempted without a principal.
	ErrUnauthenticated = errors.New("no authenticated principal")
	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrNotFound is returned by the store for unknown ids.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when a principal touches a record it does not own.
	ErrForbidden = errors.New("record owned by another principal")
	// ErrAlreadyExists is returned when inserting an id the store already holds.
	ErrAlreadyExists = errors.New("record already exists")
)
