package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler tuning.
const (
	defaultMinFrameInterval  = 30 * time.Millisecond
	defaultCorruptFrameLimit = 5

	// frameQueueSize bounds buffered live-view frames. Frames are
	// ephemeral; when the consumer falls behind, new frames are
	// dropped and counted rather than blocking the capture loop.
	frameQueueSize = 8

	// downloadQueueSize bounds buffered capture downloads. Unlike
	// frames these must not be dropped, so a full queue blocks the
	// loop until the ingest side catches up.
	downloadQueueSize = 100

	// idlePollInterval paces the loop while the session is away.
	idlePollInterval = 500 * time.Millisecond
)

// jpegSOI is the JPEG start-of-image marker.
var jpegSOI = []byte{0xFF, 0xD8}

// jpegEOI is the JPEG end-of-image marker.
var jpegEOI = []byte{0xFF, 0xD9}

// FrameCallback receives sanitised live-view frames.
type FrameCallback func(frame PreviewFrame)

// DownloadCallback receives downloaded capture files.
type DownloadCallback func(ev DownloadEvent)

// SchedulerConfig holds capture-loop tuning. Zero values select the
// defaults.
type SchedulerConfig struct {
	// MinFrameInterval is the floor between live-view captures.
	MinFrameInterval time.Duration

	// CorruptFrameLimit is the consecutive corrupt-frame count at
	// which the session is marked degraded; at twice the limit the
	// session is forced lost so the watcher performs a full reconnect.
	CorruptFrameLimit int
}

// SchedulerStats is a point-in-time snapshot of scheduler counters.
type SchedulerStats struct {
	Running          bool
	Cycles           uint64
	Frames           uint64
	FramesDropped    uint64
	Downloads        uint64
	CaptureFailures  uint64
	PollFailures     uint64
	CorruptStreak    int32
	MinFrameInterval time.Duration
}

// Scheduler drives the capture loop: live-view frames at a paced
// interval interleaved with device event polling and capture downloads.
//
// The two phases are isolated: a failing preview capture never stops
// event polling and vice versa, so tethered shooting keeps working when
// live view is unhealthy.
//
// Frames and downloads are handed to callbacks from dedicated worker
// goroutines, keeping decode and disk work off the device loop.
type Scheduler struct {
	session *Session

	minInterval  atomic.Int64 // nanoseconds, runtime-adjustable
	corruptLimit int

	callbackMu sync.RWMutex
	onFrame    FrameCallback
	onDownload DownloadCallback

	frameQueue    chan PreviewFrame
	downloadQueue chan DownloadEvent

	done    *closeOnce
	wg      sync.WaitGroup
	running atomic.Bool

	corruptStreak   atomic.Int32
	cyclesTotal     atomic.Uint64
	framesTotal     atomic.Uint64
	framesDropped   atomic.Uint64
	downloadsTotal  atomic.Uint64
	captureFailures atomic.Uint64
	pollFailures    atomic.Uint64

	loggerMu sync.RWMutex
	logger   Logger
}

// NewScheduler creates a scheduler over the given session.
func NewScheduler(session *Session, cfg SchedulerConfig) (*Scheduler, error) {
	if session == nil {
		return nil, fmt.Errorf("camera: session is required")
	}
	if cfg.MinFrameInterval <= 0 {
		cfg.MinFrameInterval = defaultMinFrameInterval
	}
	if cfg.CorruptFrameLimit <= 0 {
		cfg.CorruptFrameLimit = defaultCorruptFrameLimit
	}

	sc := &Scheduler{
		session:       session,
		corruptLimit:  cfg.CorruptFrameLimit,
		frameQueue:    make(chan PreviewFrame, frameQueueSize),
		downloadQueue: make(chan DownloadEvent, downloadQueueSize),
		done:          newCloseOnce(),
	}
	sc.minInterval.Store(int64(cfg.MinFrameInterval))
	return sc, nil
}

// SetLogger sets an optional logger.
func (sc *Scheduler) SetLogger(logger Logger) {
	sc.loggerMu.Lock()
	defer sc.loggerMu.Unlock()
	sc.logger = logger
}

// SetOnFrame registers the live-view frame consumer.
func (sc *Scheduler) SetOnFrame(fn FrameCallback) {
	sc.callbackMu.Lock()
	defer sc.callbackMu.Unlock()
	sc.onFrame = fn
}

// SetOnDownload registers the capture download consumer.
func (sc *Scheduler) SetOnDownload(fn DownloadCallback) {
	sc.callbackMu.Lock()
	defer sc.callbackMu.Unlock()
	sc.onDownload = fn
}

// SetMinFrameInterval adjusts the live-view pacing at runtime.
func (sc *Scheduler) SetMinFrameInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, d)
	}
	sc.minInterval.Store(int64(d))
	sc.logInfo("frame interval updated", "interval", d.String())
	return nil
}

// MinFrameInterval returns the current live-view pacing floor.
func (sc *Scheduler) MinFrameInterval() time.Duration {
	return time.Duration(sc.minInterval.Load())
}

// Start launches the capture loop and worker goroutines. A scheduler
// runs once; after Stop it cannot be restarted.
func (sc *Scheduler) Start(ctx context.Context) error {
	if !sc.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: scheduler", ErrAlreadyRunning)
	}

	sc.wg.Add(3)
	go sc.captureLoop(ctx)
	go sc.frameWorker()
	go sc.downloadWorker()

	sc.logInfo("capture scheduler started",
		"min_frame_interval", sc.MinFrameInterval().String(),
		"corrupt_frame_limit", sc.corruptLimit)
	return nil
}

// Stop halts the loop and workers. The loop observes the stop within
// one cycle and makes no device calls afterwards; queued downloads are
// flushed to the callback before the workers exit.
func (sc *Scheduler) Stop() {
	sc.done.Close()
	sc.wg.Wait()
	sc.running.Store(false)
	sc.logInfo("capture scheduler stopped")
}

// Stats returns a snapshot of the scheduler counters.
func (sc *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Running:          sc.running.Load(),
		Cycles:           sc.cyclesTotal.Load(),
		Frames:           sc.framesTotal.Load(),
		FramesDropped:    sc.framesDropped.Load(),
		Downloads:        sc.downloadsTotal.Load(),
		CaptureFailures:  sc.captureFailures.Load(),
		PollFailures:     sc.pollFailures.Load(),
		CorruptStreak:    sc.corruptStreak.Load(),
		MinFrameInterval: sc.MinFrameInterval(),
	}
}

// captureLoop is the single goroutine that talks to the device.
func (sc *Scheduler) captureLoop(ctx context.Context) {
	defer sc.wg.Done()

	var lastFrame time.Time

	for {
		select {
		case <-sc.done.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		if !sc.session.State().IsConnected() {
			// Camera away; idle until the watcher restores the session.
			select {
			case <-sc.done.Done():
				return
			case <-ctx.Done():
				return
			case <-time.After(idlePollInterval):
			}
			continue
		}

		sc.cyclesTotal.Add(1)
		interval := sc.MinFrameInterval()

		if time.Since(lastFrame) >= interval {
			sc.captureFrame(ctx)
			lastFrame = time.Now()
		}

		if !sc.pollAndDispatch(ctx) {
			return
		}

		wait := time.Until(lastFrame.Add(interval))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-sc.done.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// captureFrame grabs one live-view frame, maintains the corrupt-frame
// streak, and queues the sanitised frame. Failures are counted and
// logged; the event-poll phase runs regardless.
func (sc *Scheduler) captureFrame(ctx context.Context) {
	frame, err := sc.session.CapturePreview(ctx)
	if err != nil {
		sc.captureFailures.Add(1)
		if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTransportLost) {
			sc.logDebug("preview capture unavailable", "error", err)
		} else if ctx.Err() == nil {
			sc.logWarn("preview capture failed", "error", err)
		}
		return
	}

	clean, ok := SanitizeJPEG(frame.Data)
	if !ok {
		streak := int(sc.corruptStreak.Add(1))
		sc.logWarn("corrupt preview frame", "streak", streak, "bytes", len(frame.Data))
		if streak == sc.corruptLimit {
			sc.session.MarkDegraded("corrupt preview stream")
		}
		if streak >= sc.corruptLimit*2 {
			sc.corruptStreak.Store(0)
			sc.session.MarkLost("corrupt preview stream persisted")
		}
		return
	}
	sc.corruptStreak.Store(0)
	sc.session.MarkHealthy()

	frame.Data = clean
	sc.framesTotal.Add(1)

	select {
	case sc.frameQueue <- frame:
	default:
		// Consumer behind; live frames are ephemeral, drop and count.
		sc.framesDropped.Add(1)
	}
}

// pollAndDispatch drains device events and pushes downloaded files onto
// the download queue. Returns false when the scheduler is stopping.
func (sc *Scheduler) pollAndDispatch(ctx context.Context) bool {
	events, err := sc.session.PollEvents(ctx)
	if err != nil {
		sc.pollFailures.Add(1)
		if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTransportLost) {
			sc.logDebug("event poll unavailable", "error", err)
		} else if ctx.Err() == nil {
			sc.logWarn("event poll failed", "error", err)
		}
		return true
	}

	for _, ev := range events {
		select {
		case <-sc.done.Done():
			return false
		case <-ctx.Done():
			return false
		default:
		}

		data, err := sc.session.DownloadFile(ctx, ev)
		if err != nil {
			sc.logWarn("capture download failed",
				"file", ev.Name, "folder", ev.SourcePath, "error", err)
			continue
		}

		devent := DownloadEvent{
			SourcePath: ev.SourcePath,
			LocalName:  ev.Name,
			Kind:       ClassifyFile(ev.Name),
			Data:       data,
			ArrivedAt:  time.Now(),
		}
		sc.downloadsTotal.Add(1)
		sc.logInfo("capture downloaded",
			"file", ev.Name, "kind", devent.Kind.String(), "bytes", len(data))

		// Captures must not be lost: block until the ingest side has
		// room, bailing out only on shutdown.
		select {
		case sc.downloadQueue <- devent:
		case <-sc.done.Done():
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// frameWorker delivers queued frames to the frame callback. Remaining
// frames are discarded at shutdown; they are ephemeral by nature.
func (sc *Scheduler) frameWorker() {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.done.Done():
			return
		case frame := <-sc.frameQueue:
			sc.deliverFrame(frame)
		}
	}
}

// downloadWorker delivers queued downloads to the download callback. At
// shutdown the queue is flushed first so no downloaded capture is lost.
func (sc *Scheduler) downloadWorker() {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.done.Done():
			for {
				select {
				case ev := <-sc.downloadQueue:
					sc.deliverDownload(ev)
				default:
					return
				}
			}
		case ev := <-sc.downloadQueue:
			sc.deliverDownload(ev)
		}
	}
}

func (sc *Scheduler) deliverFrame(frame PreviewFrame) {
	sc.callbackMu.RLock()
	fn := sc.onFrame
	sc.callbackMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sc.logError("frame callback panic", "panic", r)
		}
	}()
	fn(frame)
}

func (sc *Scheduler) deliverDownload(ev DownloadEvent) {
	sc.callbackMu.RLock()
	fn := sc.onDownload
	sc.callbackMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			sc.logError("download callback panic", "file", ev.LocalName, "panic", r)
		}
	}()
	fn(ev)
}

// SanitizeJPEG validates a live-view frame and trims trailing garbage.
// It requires a leading SOI marker and a closing EOI marker; bytes after
// the last EOI (vendor padding, partial next frame) are cut. Returns
// false for frames that are not plausible JPEGs.
func SanitizeJPEG(data []byte) ([]byte, bool) {
	if len(data) < 4 || !bytes.HasPrefix(data, jpegSOI) {
		return nil, false
	}
	end := bytes.LastIndex(data, jpegEOI)
	if end < 2 {
		return nil, false
	}
	return data[:end+2], true
}

func (sc *Scheduler) getLogger() Logger {
	sc.loggerMu.RLock()
	defer sc.loggerMu.RUnlock()
	return sc.logger
}

func (sc *Scheduler) logDebug(msg string, keysAndValues ...any) {
	if l := sc.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (sc *Scheduler) logInfo(msg string, keysAndValues ...any) {
	if l := sc.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (sc *Scheduler) logWarn(msg string, keysAndValues ...any) {
	if l := sc.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (sc *Scheduler) logError(msg string, keysAndValues ...any) {
	if l := sc.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
