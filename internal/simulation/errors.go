package simulation

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrMissingModel  = errors.New("controller and plant are required")
)
