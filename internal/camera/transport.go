package camera

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// DeviceHandle identifies an open device connection.
// It is owned exclusively by the Session and invalidated on disconnect;
// adapters mint one in OpenDevice and receive it back on every call.
type DeviceHandle string

// Transport is the boundary to a physical camera driver.
//
// The core never depends on a concrete vendor SDK, only on this contract.
// Implementations live under internal/adapters and are selected by the
// camera.adapter config key.
//
// Error contract: adapters return *CodedError for device-level failures so
// the session can classify them (transient / transport lost / fatal) against
// the configured code table. Plain errors are classified as fatal.
//
// Buffer contract: byte slices returned by CapturePreview and DownloadFile
// may be reused by the adapter after the call returns. The session copies
// them before they cross the device boundary; adapters need not.
type Transport interface {
	// Name returns the adapter identifier (e.g., "sim").
	Name() string

	// OpenDevice detects and opens the camera, returning a handle for
	// subsequent calls.
	OpenDevice(ctx context.Context) (DeviceHandle, error)

	// CapturePreview captures a single live-view frame as JPEG bytes.
	CapturePreview(ctx context.Context, h DeviceHandle) ([]byte, error)

	// PollEvents drains pending device events, returning descriptors for
	// any capture files the camera has finished writing. May return an
	// empty slice when nothing is pending.
	PollEvents(ctx context.Context, h DeviceHandle) ([]FileEvent, error)

	// DownloadFile fetches the payload for a file event.
	DownloadFile(ctx context.Context, h DeviceHandle, ev FileEvent) ([]byte, error)

	// Release closes the device connection. The handle is invalid afterwards.
	Release(ctx context.Context, h DeviceHandle) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// FileEvent describes a capture file announced by the camera.
// It is a descriptor only; the payload is fetched via DownloadFile.
type FileEvent struct {
	// SourcePath is the device-side folder holding the file.
	SourcePath string

	// Name is the file name as reported by the camera.
	Name string

	// Size is the reported file size in bytes (0 if unknown).
	Size int64
}

// PreviewFrame is a single live-view frame.
// Data is a fully-owned copy, valid indefinitely and never aliased to
// adapter-internal buffers.
type PreviewFrame struct {
	Data       []byte
	CapturedAt time.Time
}

// DownloadEvent carries a downloaded capture file from the scheduler to
// the ingest pipeline. Data is a fully-owned copy.
type DownloadEvent struct {
	SourcePath string
	LocalName  string
	Kind       FileKind
	Data       []byte
	ArrivedAt  time.Time
}

// LogicalID returns the capture's base identifier: the file name without
// its extension. A RAW file and its companion share a logical ID.
func (e DownloadEvent) LogicalID() string {
	return LogicalID(e.LocalName)
}

// FileKind categorises a capture file by role.
type FileKind int

// File kinds.
const (
	KindUnknown FileKind = iota
	KindRaw
	KindCompanion
)

// String returns the lowercase kind name.
func (k FileKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindCompanion:
		return "companion"
	default:
		return "unknown"
	}
}

// rawExtensions covers the vendor RAW formats the ingest pipeline
// understands (embedded-thumbnail scan works on all of them).
var rawExtensions = map[string]bool{
	".arw": true, // Sony
	".nef": true, // Nikon
	".cr2": true, // Canon
	".cr3": true, // Canon
	".rw2": true, // Panasonic
	".raf": true, // Fujifilm
	".orf": true, // Olympus
	".dng": true, // Adobe / Leica / Pentax
	".pef": true, // Pentax
	".srw": true, // Samsung
}

// companionExtensions covers the directly decodable companion formats.
var companionExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// ClassifyFile maps a file name to its kind by extension,
// case-insensitively.
func ClassifyFile(name string) FileKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case rawExtensions[ext]:
		return KindRaw
	case companionExtensions[ext]:
		return KindCompanion
	default:
		return KindUnknown
	}
}

// IsRawExtension reports whether ext (with leading dot, any case) is a
// known RAW extension.
func IsRawExtension(ext string) bool {
	return rawExtensions[strings.ToLower(ext)]
}

// IsCompanionExtension reports whether ext (with leading dot, any case)
// is a known companion extension.
func IsCompanionExtension(ext string) bool {
	return companionExtensions[strings.ToLower(ext)]
}

// LogicalID returns the base name of a capture file without its extension.
// "capt0001.arw" and "capt0001.jpg" share the logical ID "capt0001".
func LogicalID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
