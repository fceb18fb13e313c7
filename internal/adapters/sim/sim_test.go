package sim

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/mkarlberg/studiotether/internal/camera"
	"github.com/mkarlberg/studiotether/internal/preview"
)

func openTransport(t *testing.T, cfg Config) (*Transport, camera.DeviceHandle) {
	t.Helper()
	tr := New(cfg)
	handle, err := tr.OpenDevice(context.Background())
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	return tr, handle
}

func TestName(t *testing.T) {
	if got := New(Config{}).Name(); got != "sim" {
		t.Errorf("Name() = %q, want sim", got)
	}
}

func TestOpenDevice_FreshHandles(t *testing.T) {
	tr := New(Config{})
	ctx := context.Background()

	h1, err := tr.OpenDevice(ctx)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := tr.Release(ctx, h1); err != nil {
		t.Fatalf("release: %v", err)
	}

	h2, err := tr.OpenDevice(ctx)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if h1 == h2 {
		t.Errorf("reopen returned the same handle %q", h1)
	}
}

func TestCapturePreview_RequiresOpen(t *testing.T) {
	tr := New(Config{})

	_, err := tr.CapturePreview(context.Background(), camera.DeviceHandle("stale"))
	if err == nil {
		t.Fatal("capture on closed device should fail")
	}

	var coded *camera.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error %v is not a CodedError", err)
	}
	if coded.Code != codeNoDevice {
		t.Errorf("code = %d, want %d", coded.Code, codeNoDevice)
	}
}

func TestCapturePreview_DecodableFrames(t *testing.T) {
	tr, h := openTransport(t, Config{})
	ctx := context.Background()

	frame1, err := tr.CapturePreview(ctx, h)
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	// Copy before the next capture reuses the buffer.
	first := append([]byte(nil), frame1...)

	frame2, err := tr.CapturePreview(ctx, h)
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}

	for i, data := range [][]byte{first, frame2} {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("frame %d does not decode: %v", i+1, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != frameWidth || bounds.Dy() != frameHeight {
			t.Errorf("frame %d is %dx%d, want %dx%d", i+1, bounds.Dx(), bounds.Dy(), frameWidth, frameHeight)
		}
	}

	// The sweep bar moves, so consecutive frames differ.
	if bytes.Equal(first, frame2) {
		t.Error("consecutive frames are identical")
	}
}

func TestCapturePreview_FaultInjection(t *testing.T) {
	tr, h := openTransport(t, Config{FailEveryN: 2})
	ctx := context.Background()

	if _, err := tr.CapturePreview(ctx, h); err != nil {
		t.Fatalf("capture 1 should succeed: %v", err)
	}

	_, err := tr.CapturePreview(ctx, h)
	if err == nil {
		t.Fatal("capture 2 should fail with FailEveryN=2")
	}
	var coded *camera.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error %v is not a CodedError", err)
	}
	if coded.Code != codeBusy {
		t.Errorf("code = %d, want %d", coded.Code, codeBusy)
	}

	if _, err := tr.CapturePreview(ctx, h); err != nil {
		t.Fatalf("capture 3 should succeed: %v", err)
	}
}

func TestPollEvents_ShotClock(t *testing.T) {
	tr, h := openTransport(t, Config{ShotInterval: time.Hour})
	ctx := context.Background()

	// Not due yet.
	events, err := tr.PollEvents(ctx, h)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events before the interval elapsed", len(events))
	}

	// Rewind the shot clock so the next poll fires the shutter.
	tr.mu.Lock()
	tr.lastShot = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()

	events, err = tr.PollEvents(ctx, h)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (RAW+JPEG pair)", len(events))
	}

	if events[0].Name != "capt_0001.ARW" {
		t.Errorf("events[0].Name = %q, want capt_0001.ARW", events[0].Name)
	}
	if events[1].Name != "capt_0001.JPG" {
		t.Errorf("events[1].Name = %q, want capt_0001.JPG", events[1].Name)
	}
	if camera.ClassifyFile(events[0].Name) != camera.KindRaw {
		t.Error("first event should classify as RAW")
	}
	if camera.ClassifyFile(events[1].Name) != camera.KindCompanion {
		t.Error("second event should classify as companion")
	}
	for _, ev := range events {
		if ev.Size <= 0 {
			t.Errorf("%s has size %d", ev.Name, ev.Size)
		}
	}

	// The pair is announced once.
	events, err = tr.PollEvents(ctx, h)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events on the drained queue", len(events))
	}
}

func TestDownloadFile_PairContents(t *testing.T) {
	tr, h := openTransport(t, Config{ShotInterval: time.Hour})
	ctx := context.Background()

	tr.mu.Lock()
	tr.lastShot = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()

	events, err := tr.PollEvents(ctx, h)
	if err != nil || len(events) != 2 {
		t.Fatalf("poll: %v (%d events)", err, len(events))
	}

	raw, err := tr.DownloadFile(ctx, h, events[0])
	if err != nil {
		t.Fatalf("download RAW: %v", err)
	}
	if !bytes.HasPrefix(raw, rawMagic) {
		t.Error("RAW payload missing container magic")
	}

	companion, err := tr.DownloadFile(ctx, h, events[1])
	if err != nil {
		t.Fatalf("download JPEG: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(companion))
	if err != nil {
		t.Fatalf("companion does not decode: %v", err)
	}
	if img.Bounds().Dx() != captureWidth {
		t.Errorf("companion width = %d, want %d", img.Bounds().Dx(), captureWidth)
	}

	// The embedded preview inside the RAW survives the container scan
	// used by the ingest pipeline.
	embedded, ok := preview.ExtractEmbeddedJPEG(raw)
	if !ok {
		t.Fatal("no embedded JPEG found in simulated RAW")
	}
	if !bytes.Equal(embedded, companion) {
		t.Error("embedded JPEG differs from the companion payload")
	}

	// Downloads free the device-side copy.
	if _, err := tr.DownloadFile(ctx, h, events[0]); err == nil {
		t.Error("second download of the same file should fail")
	}
}

func TestRelease_DropsState(t *testing.T) {
	tr, h := openTransport(t, Config{ShotInterval: time.Hour})
	ctx := context.Background()

	tr.mu.Lock()
	tr.lastShot = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()
	if _, err := tr.PollEvents(ctx, h); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if err := tr.Release(ctx, h); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := tr.CapturePreview(ctx, h); err == nil {
		t.Error("capture after release should fail")
	}
	if _, err := tr.PollEvents(ctx, h); err == nil {
		t.Error("poll after release should fail")
	}
}

func TestShotSequenceAdvances(t *testing.T) {
	tr, h := openTransport(t, Config{ShotInterval: time.Nanosecond})
	ctx := context.Background()

	var names []string
	for i := 0; i < 2; i++ {
		time.Sleep(time.Millisecond)
		events, err := tr.PollEvents(ctx, h)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		for _, ev := range events {
			names = append(names, ev.Name)
		}
	}

	want := []string{"capt_0001.ARW", "capt_0001.JPG", "capt_0002.ARW", "capt_0002.JPG"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
