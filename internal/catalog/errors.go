package catalog

import "errors"

// Domain errors for the catalog package, checkable with errors.Is().
var (
	// ErrCaptureNotFound is returned when no capture row exists for a
	// logical ID.
	ErrCaptureNotFound = errors.New("catalog: capture not found")

	// ErrInvalidCapture is returned when a capture fails validation.
	ErrInvalidCapture = errors.New("catalog: invalid capture")

	// ErrInvalidEvent is returned when a session event fails validation.
	ErrInvalidEvent = errors.New("catalog: invalid session event")
)
