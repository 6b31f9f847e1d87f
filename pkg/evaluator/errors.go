package evaluator

import "errors"

var (
	// ErrInvalidProfile is returned when a profile fails load-time validation.
	ErrInvalidProfile = errors.New("invalid target profile")
)
