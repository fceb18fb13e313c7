package camera

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testClassifier() *Classifier {
	// Mirrors the shipped defaults: gphoto2-style negative codes.
	return NewClassifier(
		[]int{-10, -110}, // transient: timeouts, busy
		[]int{-7, -52},   // lost: I/O error, camera gone
		[]int{-1},        // fatal: generic driver error
	)
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"transient code", NewCodedError(-10, "capture", nil), SeverityTransient},
		{"second transient code", NewCodedError(-110, "poll", nil), SeverityTransient},
		{"lost code", NewCodedError(-7, "capture", nil), SeverityLost},
		{"camera gone", NewCodedError(-52, "download", nil), SeverityLost},
		{"listed fatal code", NewCodedError(-1, "open", nil), SeverityFatal},
		{"unknown code", NewCodedError(-999, "capture", nil), SeverityFatal},
		{"positive code", NewCodedError(42, "capture", nil), SeverityFatal},
		{"plain error", errors.New("something broke"), SeverityFatal},
		{"wrapped coded error", fmt.Errorf("outer: %w", NewCodedError(-10, "capture", nil)), SeverityTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyOverlapPrefersLost(t *testing.T) {
	// A code listed both transient and lost must classify as lost;
	// retrying a dead transport helps nobody.
	c := NewClassifier([]int{-7}, []int{-7}, nil)

	if got := c.Classify(NewCodedError(-7, "capture", nil)); got != SeverityLost {
		t.Errorf("overlapping code classified %v, want %v", got, SeverityLost)
	}
}

func TestCodedErrorMessage(t *testing.T) {
	err := NewCodedError(-7, "capture_preview", errors.New("usb gone"))
	msg := err.Error()

	if !strings.Contains(msg, "capture_preview") {
		t.Errorf("message %q missing operation", msg)
	}
	if !strings.Contains(msg, "-7") {
		t.Errorf("message %q missing code", msg)
	}
	if !strings.Contains(msg, "usb gone") {
		t.Errorf("message %q missing cause", msg)
	}

	bare := NewCodedError(-10, "poll_events", nil)
	if !strings.Contains(bare.Error(), "code -10") {
		t.Errorf("bare message %q missing code", bare.Error())
	}
}

func TestCodedErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewCodedError(-7, "capture", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var coded *CodedError
	wrapped := fmt.Errorf("attempt 3: %w", err)
	if !errors.As(wrapped, &coded) {
		t.Fatal("errors.As should find CodedError through wrapping")
	}
	if coded.Code != -7 {
		t.Errorf("Code = %d, want -7", coded.Code)
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityTransient, "transient"},
		{SeverityLost, "transport_lost"},
		{SeverityFatal, "fatal"},
		{Severity(99), "fatal"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", int(tt.severity), got, tt.want)
		}
	}
}
