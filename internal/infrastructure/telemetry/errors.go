package telemetry

import "errors"

// Failures the daemon distinguishes with errors.Is.
var (
	// ErrDisabled means config has telemetry switched off.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed wraps a failed initial ping.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected means the client was closed or never connected.
	ErrNotConnected = errors.New("telemetry: not connected")
)
