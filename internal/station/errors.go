package station

import "errors"

var (
	ErrInvalidSetpoint    = errors.New("invalid temperature setpoint")
	ErrInvalidMinMax      = errors.New("invalid min/max setpoints")
	ErrSetpointOutOfRange = errors.New("setpoint out of range")
	ErrInvalidInterval    = errors.New("step interval must be > 0")
	ErrInvalidSteps       = errors.New("simulation steps must be > 0")
	ErrMissingController  = errors.New("controller and plant are required")
)
