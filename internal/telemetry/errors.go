package telemetry

import "errors"

var (
	ErrNoBrokers     = errors.New("kafka: at least one broker is required")
	ErrNoTopic       = errors.New("kafka: topic is required")
	ErrMissingSink   = errors.New("telemetry: sink is required")
	ErrInvalidBuffer = errors.New("telemetry: buffer size must be > 0")
)
