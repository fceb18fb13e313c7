package preview

import "errors"

// Common errors returned by the preview pipeline and cache.
var (
	// ErrDecodeFailed indicates no displayable thumbnail could be
	// produced for a capture file.
	ErrDecodeFailed = errors.New("preview: decode failed")

	// ErrUnsupported indicates a decoder capability does not handle the
	// container format. Capability providers wrap it to signal
	// "not applicable" rather than a real failure.
	ErrUnsupported = errors.New("preview: format not supported")

	// ErrInvalidRotation indicates a rotation outside 0/90/180/270.
	ErrInvalidRotation = errors.New("preview: invalid rotation")

	// ErrAlreadyRunning indicates a second Start on a running ingester.
	ErrAlreadyRunning = errors.New("preview: already running")
)
