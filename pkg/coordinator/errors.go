package coordinator

import "errors"

var (
	// ErrActorNotFound is returned for operations on an unknown actor id.
	ErrActorNotFound = errors.New("actor not found")

	// ErrActorRegistered is returned when registering a duplicate id.
	ErrActorRegistered = errors.New("actor already registered")

	// ErrInvalidSettings is returned when settings fail validation.
	ErrInvalidSettings = errors.New("invalid evaluation settings")
)
