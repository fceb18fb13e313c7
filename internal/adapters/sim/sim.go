// Package sim provides a simulated camera transport for development and
// testing without hardware.
//
// The adapter synthesises live-view JPEG frames, fires a simulated
// shutter on a configurable cadence (each release announces a RAW +
// companion JPEG pair, like a camera writing both formats), and can
// inject transient failures to exercise the session's retry path.
//
// Buffer contract: CapturePreview reuses an internal encode buffer
// between calls, exactly as the transport interface permits. The
// session must copy frames out before releasing the device lock, and
// running against this adapter proves that it does.
package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"sync"
	"time"

	"github.com/mkarlberg/studiotether/internal/camera"
)

// Simulated driver error codes. These sit in the default error-class
// tables: codeBusy is transient, codeNoDevice is a transport loss.
const (
	codeBusy     = -110
	codeNoDevice = -52
)

// Frame and capture geometry.
const (
	frameWidth  = 320
	frameHeight = 240

	captureWidth  = 256
	captureHeight = 192

	// captureQuality keeps synthetic noise captures above the embedded
	// thumbnail scan's minimum size.
	captureQuality = 90
)

// rawMagic marks the opaque header of a simulated RAW container.
var rawMagic = []byte("SIMRAW01")

var errNotOpen = errors.New("sim: device not open")

// Config holds simulation knobs. The zero value simulates a camera that
// streams live view but never fires the shutter.
type Config struct {
	// ShotInterval is the cadence of simulated shutter releases. Each
	// release announces one RAW+JPEG pair. Zero disables captures.
	ShotInterval time.Duration

	// FailEveryN injects a transient busy error on every Nth preview
	// capture. Zero disables fault injection.
	FailEveryN int
}

// Transport is a simulated camera. It satisfies camera.Transport.
type Transport struct {
	cfg Config

	mu        sync.Mutex
	open      bool
	handleSeq int
	shotSeq   int
	lastShot  time.Time
	pending   []camera.FileEvent
	files     map[string][]byte

	captureCalls int
	frameSeq     int
	frameBuf     bytes.Buffer // reused across CapturePreview calls
}

// New creates a simulated transport.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:   cfg,
		files: make(map[string][]byte),
	}
}

// Name returns the adapter name.
func (t *Transport) Name() string { return "sim" }

// OpenDevice starts a simulated session. The shot clock begins at open,
// so the first pair lands one interval later.
func (t *Transport) OpenDevice(ctx context.Context) (camera.DeviceHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = true
	t.handleSeq++
	t.lastShot = time.Now()
	return camera.DeviceHandle(fmt.Sprintf("sim-%d", t.handleSeq)), nil
}

// CapturePreview synthesises one live-view frame. The returned slice
// aliases an internal buffer that the next call overwrites.
func (t *Transport) CapturePreview(_ context.Context, _ camera.DeviceHandle) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil, camera.NewCodedError(codeNoDevice, "capture_preview", errNotOpen)
	}

	t.captureCalls++
	if t.cfg.FailEveryN > 0 && t.captureCalls%t.cfg.FailEveryN == 0 {
		return nil, camera.NewCodedError(codeBusy, "capture_preview", errors.New("sim: device busy"))
	}

	t.frameSeq++
	t.frameBuf.Reset()
	if err := jpeg.Encode(&t.frameBuf, renderFrame(t.frameSeq), nil); err != nil {
		return nil, camera.NewCodedError(codeBusy, "capture_preview", err)
	}
	return t.frameBuf.Bytes(), nil
}

// PollEvents fires the shot clock and returns any announced files.
// A due shutter release synthesises a RAW+JPEG pair; both descriptors
// are announced in the same poll, RAW first, the way cameras report a
// dual-format capture.
func (t *Transport) PollEvents(_ context.Context, _ camera.DeviceHandle) ([]camera.FileEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil, camera.NewCodedError(codeNoDevice, "poll_events", errNotOpen)
	}

	if t.cfg.ShotInterval > 0 && time.Since(t.lastShot) >= t.cfg.ShotInterval {
		t.lastShot = time.Now()
		t.fireShutterLocked()
	}

	if len(t.pending) == 0 {
		return nil, nil
	}
	events := t.pending
	t.pending = nil
	return events, nil
}

// DownloadFile returns a stored capture payload. The device-side copy
// is freed after a successful download.
func (t *Transport) DownloadFile(_ context.Context, _ camera.DeviceHandle, ev camera.FileEvent) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil, camera.NewCodedError(codeNoDevice, "download_file", errNotOpen)
	}

	data, ok := t.files[ev.Name]
	if !ok {
		return nil, camera.NewCodedError(codeBusy, "download_file", fmt.Errorf("sim: no such file %q", ev.Name))
	}
	delete(t.files, ev.Name)
	return data, nil
}

// Release ends the simulated session and drops undelivered files.
func (t *Transport) Release(_ context.Context, _ camera.DeviceHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = false
	t.pending = nil
	t.files = make(map[string][]byte)
	return nil
}

// fireShutterLocked synthesises one capture pair and announces it.
func (t *Transport) fireShutterLocked() {
	t.shotSeq++
	base := fmt.Sprintf("capt_%04d", t.shotSeq)
	rawName := base + ".ARW"
	jpgName := base + ".JPG"

	companion := renderCapture(t.shotSeq)
	t.files[rawName] = wrapRaw(companion)
	t.files[jpgName] = companion

	t.pending = append(t.pending,
		camera.FileEvent{SourcePath: "/store_00010001/DCIM", Name: rawName, Size: int64(len(t.files[rawName]))},
		camera.FileEvent{SourcePath: "/store_00010001/DCIM", Name: jpgName, Size: int64(len(t.files[jpgName]))},
	)
}

// renderFrame draws a live-view test pattern: a colour gradient with a
// sweep bar whose position advances per frame.
func renderFrame(seq int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	barX := (seq * 7) % frameWidth
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / frameWidth),
				G: uint8(y * 255 / frameHeight),
				B: 96,
				A: 255,
			}
			if x >= barX && x < barX+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// renderCapture encodes a noise image seeded by the shot number. Noise
// defeats JPEG compression, keeping the payload large enough for the
// ingest pipeline's embedded-preview scan to accept it.
func renderCapture(seq int) []byte {
	rng := rand.New(rand.NewSource(int64(seq)))
	img := image.NewRGBA(image.Rect(0, 0, captureWidth, captureHeight))
	for y := 0; y < captureHeight; y++ {
		for x := 0; x < captureWidth; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: captureQuality}); err != nil {
		// Encoding a valid in-memory RGBA image cannot fail.
		panic(err)
	}
	return buf.Bytes()
}

// wrapRaw builds a simulated RAW container: an opaque vendor header, a
// length field, the embedded full-size JPEG, and trailing sensor
// padding. Only the embedded JPEG matters to the ingest pipeline.
func wrapRaw(embedded []byte) []byte {
	header := make([]byte, 0, len(rawMagic)+4+len(embedded)+64)
	header = append(header, rawMagic...)
	header = binary.BigEndian.AppendUint32(header, uint32(len(embedded)))
	header = append(header, embedded...)
	header = append(header, make([]byte, 64)...)
	return header
}
