package camera

import (
	"errors"
	"fmt"
)

// Common errors returned by the camera session and scheduler.
var (
	// ErrNotConnected indicates an operation was attempted while no
	// device session is established.
	ErrNotConnected = errors.New("camera: not connected")

	// ErrConnectFailed indicates the device could not be opened.
	ErrConnectFailed = errors.New("camera: connect failed")

	// ErrTransportLost indicates the device link failed mid-operation
	// and the session has transitioned to the lost state.
	ErrTransportLost = errors.New("camera: transport lost")

	// ErrAlreadyRunning indicates a second Start on a running component.
	ErrAlreadyRunning = errors.New("camera: already running")

	// ErrInvalidInterval indicates a non-positive frame interval.
	ErrInvalidInterval = errors.New("camera: invalid frame interval")
)

// Severity is the classified impact of a device error. It decides whether
// the session retries in place or tears the connection down.
type Severity int

// Severities, in escalating order.
const (
	// SeverityTransient errors are retried with backoff while the
	// session stays connected.
	SeverityTransient Severity = iota

	// SeverityLost errors mean the transport is gone; the session
	// releases the device and reports the loss.
	SeverityLost

	// SeverityFatal errors are unrecoverable within the session and
	// are handled like a transport loss. Unrecognised codes land here.
	SeverityFatal
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	case SeverityLost:
		return "transport_lost"
	default:
		return "fatal"
	}
}

// CodedError is a device-level failure with a driver status code.
// Adapters wrap their native failures in CodedError so the session can
// classify them against the configured code table.
type CodedError struct {
	// Code is the driver status code (negative by gphoto2 convention).
	Code int

	// Op is the adapter operation that failed.
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// NewCodedError builds a CodedError for op with the given driver code.
func NewCodedError(code int, op string, err error) *CodedError {
	return &CodedError{Code: code, Op: op, Err: err}
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera: %s failed (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("camera: %s failed (code %d)", e.Op, e.Code)
}

// Unwrap returns the underlying cause.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// Classifier maps device error codes to severities using the configured
// code lists. Codes absent from every list are fatal, so an unknown
// failure can never be silently retried forever.
type Classifier struct {
	transient map[int]struct{}
	lost      map[int]struct{}
}

// NewClassifier builds a Classifier from explicit code lists. The fatal
// list is accepted for completeness but needs no lookup table: anything
// not transient and not lost is fatal.
func NewClassifier(transient, lost, fatal []int) *Classifier {
	c := &Classifier{
		transient: make(map[int]struct{}, len(transient)),
		lost:      make(map[int]struct{}, len(lost)),
	}
	for _, code := range transient {
		c.transient[code] = struct{}{}
	}
	for _, code := range lost {
		c.lost[code] = struct{}{}
	}
	// Lost wins when a code appears in both lists; drop it from the
	// transient set so classification is deterministic.
	for code := range c.lost {
		delete(c.transient, code)
	}
	_ = fatal
	return c
}

// Classify returns the severity of a device error. Errors that do not
// carry a driver code are fatal.
func (c *Classifier) Classify(err error) Severity {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return SeverityFatal
	}
	if _, ok := c.lost[coded.Code]; ok {
		return SeverityLost
	}
	if _, ok := c.transient[coded.Code]; ok {
		return SeverityTransient
	}
	return SeverityFatal
}
