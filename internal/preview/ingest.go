package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/mkarlberg/studiotether/internal/camera"
)

// Ingest defaults.
const (
	defaultPairTimeout = 2 * time.Second
	defaultJPEGQuality = 85

	// sweepInterval paces the pending-RAW deadline sweep.
	sweepInterval = 250 * time.Millisecond

	downloadDirPerm  = 0o755
	downloadFilePerm = 0o644
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// IngestConfig holds pipeline tuning. Zero values select the defaults.
type IngestConfig struct {
	// DownloadDir is where capture files land on disk.
	DownloadDir string

	// PairTimeout is how long a RAW waits for its companion before
	// standalone processing.
	PairTimeout time.Duration

	// DefaultRotation is the clockwise rotation applied when a file
	// carries no orientation metadata. Runtime-adjustable.
	DefaultRotation int

	// JPEGQuality is the re-encode quality for cached thumbnails.
	JPEGQuality int

	// StripPrefixes are file-name prefixes removed before deriving the
	// logical ID (vendor spool prefixes like "capt_").
	StripPrefixes []string
}

// Result reports the outcome of ingesting one logical capture.
type Result struct {
	// LogicalID is the capture's base identifier.
	LogicalID string

	// FileName is the normalised on-disk name of the triggering file.
	FileName string

	// Source is the cache entry's source kind. Meaningless when Err is
	// set.
	Source SourceKind

	// ThumbnailSource names how the thumbnail was obtained:
	// "companion", "raw_decode", "embedded", or "none" on failure.
	ThumbnailSource string

	// Paired reports whether RAW and companion matched inside the
	// pairing window.
	Paired bool

	// Bytes is the triggering file's payload size.
	Bytes int

	// DecodeDuration covers decode, orientation and re-encode.
	DecodeDuration time.Duration

	// Err is set when no cache entry could be produced.
	Err error
}

// ResultCallback receives one Result per processed logical capture.
type ResultCallback func(Result)

// IngestStats is a point-in-time snapshot of pipeline counters.
type IngestStats struct {
	Ingested       uint64
	Paired         uint64
	Standalone     uint64
	Expired        uint64
	DecodeFailures uint64
	DiskFailures   uint64
	PendingRaw     int
}

// pendingRaw is a RAW capture waiting for its companion.
type pendingRaw struct {
	event        camera.DownloadEvent
	name         string
	registeredAt time.Time
	deadline     time.Time
}

// Ingester turns download events into preview cache entries.
//
// Pairing: a RAW arriving first waits up to the pair timeout for its
// companion; a companion arriving first is processed immediately and
// upgraded to paired if its RAW follows. A background sweep expires
// overdue RAWs into standalone processing, so an unmatched companion can
// never strand one. Pairing state is single-writer per logical ID; the
// pending set has its own lock because the sweep runs on a timer
// goroutine.
//
// Thumbnails resolve in priority order: companion decode, registered
// RAW-decoder capabilities, embedded-JPEG container scan. A capture
// failing all three reports a decode failure and produces no entry;
// failures never abort the pipeline.
type Ingester struct {
	cache    *Cache
	decoders []RawDecoder

	downloadDir   string
	pairTimeout   time.Duration
	jpegQuality   int
	stripPrefixes []string

	defaultRotation atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]*pendingRaw

	callbackMu sync.RWMutex
	onResult   ResultCallback

	done    *closeOnce
	wg      sync.WaitGroup
	running atomic.Bool

	ingested       atomic.Uint64
	paired         atomic.Uint64
	standalone     atomic.Uint64
	expired        atomic.Uint64
	decodeFailures atomic.Uint64
	diskFailures   atomic.Uint64

	loggerMu sync.RWMutex
	logger   Logger
}

// closeOnce wraps a channel that can be safely closed multiple times.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// NewIngester creates a pipeline writing entries to cache. Decoders are
// optional capability providers consulted in order for standalone RAW
// processing.
func NewIngester(cache *Cache, cfg IngestConfig, decoders ...RawDecoder) (*Ingester, error) {
	if cache == nil {
		return nil, fmt.Errorf("preview: cache is required")
	}
	if cfg.DownloadDir == "" {
		return nil, fmt.Errorf("preview: download directory is required")
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = defaultPairTimeout
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaultJPEGQuality
	}
	if !ValidRotation(cfg.DefaultRotation) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRotation, cfg.DefaultRotation)
	}

	in := &Ingester{
		cache:         cache,
		decoders:      decoders,
		downloadDir:   cfg.DownloadDir,
		pairTimeout:   cfg.PairTimeout,
		jpegQuality:   cfg.JPEGQuality,
		stripPrefixes: cfg.StripPrefixes,
		pending:       make(map[string]*pendingRaw),
		done:          newCloseOnce(),
	}
	in.defaultRotation.Store(int64(cfg.DefaultRotation))

	if err := os.MkdirAll(cfg.DownloadDir, downloadDirPerm); err != nil {
		return nil, fmt.Errorf("preview: create download directory: %w", err)
	}

	return in, nil
}

// SetLogger sets an optional logger.
func (in *Ingester) SetLogger(logger Logger) {
	in.loggerMu.Lock()
	defer in.loggerMu.Unlock()
	in.logger = logger
}

// SetOnResult registers the per-capture result consumer.
func (in *Ingester) SetOnResult(fn ResultCallback) {
	in.callbackMu.Lock()
	defer in.callbackMu.Unlock()
	in.onResult = fn
}

// SetDefaultRotation adjusts the no-metadata rotation at runtime.
// Existing cache entries keep their baked rotation; only subsequent
// ingests see the new value.
func (in *Ingester) SetDefaultRotation(degrees int) error {
	if !ValidRotation(degrees) {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}
	in.defaultRotation.Store(int64(degrees))
	in.logInfo("default rotation updated", "degrees", degrees)
	return nil
}

// DefaultRotation returns the current no-metadata rotation.
func (in *Ingester) DefaultRotation() int {
	return int(in.defaultRotation.Load())
}

// DownloadDir returns the capture spool directory.
func (in *Ingester) DownloadDir() string {
	return in.downloadDir
}

// Start launches the pending-RAW deadline sweep. An ingester runs once;
// after Stop it cannot be restarted.
func (in *Ingester) Start() error {
	if !in.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: ingester", ErrAlreadyRunning)
	}
	in.wg.Add(1)
	go in.sweepLoop()
	in.logInfo("preview ingester started",
		"download_dir", in.downloadDir,
		"pair_timeout", in.pairTimeout.String())
	return nil
}

// Stop halts the sweep. Pending RAWs are left unexpired; their files are
// on disk and startup reconciliation removes them next run.
func (in *Ingester) Stop() {
	in.done.Close()
	in.wg.Wait()
	in.running.Store(false)
	in.logInfo("preview ingester stopped")
}

// Stats returns a snapshot of the pipeline counters.
func (in *Ingester) Stats() IngestStats {
	in.pendingMu.Lock()
	pendingCount := len(in.pending)
	in.pendingMu.Unlock()

	return IngestStats{
		Ingested:       in.ingested.Load(),
		Paired:         in.paired.Load(),
		Standalone:     in.standalone.Load(),
		Expired:        in.expired.Load(),
		DecodeFailures: in.decodeFailures.Load(),
		DiskFailures:   in.diskFailures.Load(),
		PendingRaw:     pendingCount,
	}
}

// HandleDownload ingests one downloaded capture file. It is the
// scheduler's download callback.
func (in *Ingester) HandleDownload(ev camera.DownloadEvent) {
	in.handle(ev, true)
}

func (in *Ingester) handle(ev camera.DownloadEvent, writeToDisk bool) {
	name := in.normalizeName(ev.LocalName)
	id := camera.LogicalID(name)

	switch ev.Kind {
	case camera.KindRaw, camera.KindCompanion:
	default:
		in.logDebug("ignoring unknown capture kind", "file", ev.LocalName)
		return
	}

	if writeToDisk {
		in.spoolToDisk(name, ev.Data)
	}

	switch ev.Kind {
	case camera.KindRaw:
		in.handleRaw(id, name, ev)
	case camera.KindCompanion:
		in.handleCompanion(id, name, ev)
	}
}

// handleRaw pairs a RAW with an already-processed companion, or parks it
// until the companion arrives or the deadline expires.
func (in *Ingester) handleRaw(id, name string, ev camera.DownloadEvent) {
	// A companion processed moments ago leaves its entry in the cache;
	// the RAW arriving out of order upgrades it to paired in place.
	if entry, ok := in.cache.Get(id); ok && entry.Source == SourceCompanion {
		entry.Source = SourcePaired
		in.cache.Put(entry)
		in.paired.Add(1)
		in.ingested.Add(1)
		in.logInfo("paired raw with earlier companion", "logical_id", id)
		in.emit(Result{
			LogicalID:       id,
			FileName:        name,
			Source:          SourcePaired,
			ThumbnailSource: "companion",
			Paired:          true,
			Bytes:           len(ev.Data),
		})
		return
	}

	now := time.Now()
	in.pendingMu.Lock()
	in.pending[id] = &pendingRaw{
		event:        ev,
		name:         name,
		registeredAt: now,
		deadline:     now.Add(in.pairTimeout),
	}
	in.pendingMu.Unlock()
	in.logDebug("raw awaiting companion", "logical_id", id,
		"deadline_ms", in.pairTimeout.Milliseconds())
}

// handleCompanion decodes a companion, pairing it with a waiting RAW
// when one exists. When the companion bytes are undecodable and the RAW
// half is in hand, the RAW's own decode avenues are tried before the
// capture is declared failed.
func (in *Ingester) handleCompanion(id, name string, ev camera.DownloadEvent) {
	in.pendingMu.Lock()
	pending := in.pending[id]
	delete(in.pending, id)
	in.pendingMu.Unlock()

	source := SourceCompanion
	if pending != nil {
		source = SourcePaired
	}

	start := time.Now()
	thumb, rotation, err := in.renderCompanion(ev.Data)
	if err != nil {
		if pending != nil {
			in.logWarn("companion decode failed, falling back to raw",
				"logical_id", id, "error", err)
			in.processRaw(id, pending.name, pending.event, SourcePaired)
			return
		}
		in.reportDecodeFailure(id, name, len(ev.Data), err)
		return
	}

	in.cache.Put(Entry{
		LogicalID:       id,
		Thumbnail:       thumb,
		RotationDegrees: rotation,
		Source:          source,
		IngestedAt:      ev.ArrivedAt,
	})
	in.ingested.Add(1)
	if pending != nil {
		in.paired.Add(1)
	}
	in.logInfo("companion ingested", "logical_id", id,
		"paired", pending != nil, "bytes", len(thumb))
	in.emit(Result{
		LogicalID:       id,
		FileName:        name,
		Source:          source,
		ThumbnailSource: "companion",
		Paired:          pending != nil,
		Bytes:           len(ev.Data),
		DecodeDuration:  time.Since(start),
	})
}

// processRaw resolves a thumbnail from RAW bytes, decoder capabilities
// first, then the embedded-JPEG container scan, and stores the entry
// under source.
func (in *Ingester) processRaw(id, name string, ev camera.DownloadEvent, source SourceKind) {
	start := time.Now()

	img, thumbSource := in.decodeRaw(ev.Data)
	if img == nil {
		in.reportDecodeFailure(id, name, len(ev.Data), ErrDecodeFailed)
		return
	}

	thumb, rotation, err := in.bakeRotation(img, ev.Data)
	if err != nil {
		in.reportDecodeFailure(id, name, len(ev.Data), err)
		return
	}

	in.cache.Put(Entry{
		LogicalID:       id,
		Thumbnail:       thumb,
		RotationDegrees: rotation,
		Source:          source,
		IngestedAt:      ev.ArrivedAt,
	})
	in.ingested.Add(1)
	paired := source == SourcePaired
	if paired {
		in.paired.Add(1)
	} else {
		in.standalone.Add(1)
	}
	in.logInfo("raw ingested", "logical_id", id,
		"thumbnail_source", thumbSource, "paired", paired, "bytes", len(thumb))
	in.emit(Result{
		LogicalID:       id,
		FileName:        name,
		Source:          source,
		ThumbnailSource: thumbSource,
		Paired:          paired,
		Bytes:           len(ev.Data),
		DecodeDuration:  time.Since(start),
	})
}

// decodeRaw tries each decoder capability in order, then the container
// scan. Returns a nil image when every avenue fails.
func (in *Ingester) decodeRaw(data []byte) (image.Image, string) {
	for _, dec := range in.decoders {
		img, err := dec.Decode(data)
		if err == nil {
			return img, "raw_decode"
		}
		if isUnsupported(err) {
			continue
		}
		in.logWarn("raw decoder failed", "decoder", dec.Name(), "error", err)
	}

	if embedded, ok := ExtractEmbeddedJPEG(data); ok {
		img, err := imaging.Decode(bytes.NewReader(embedded))
		if err != nil {
			in.logWarn("embedded preview decode failed", "error", err)
			return nil, ""
		}
		return img, "embedded"
	}

	return nil, ""
}

// renderCompanion decodes companion JPEG bytes and bakes in rotation.
func (in *Ingester) renderCompanion(data []byte) ([]byte, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return in.bakeRotation(img, data)
}

// bakeRotation applies orientation metadata when present, the default
// rotation otherwise, and re-encodes to JPEG. Rotation is baked into the
// bytes once; it is never reapplied outside a re-ingest.
func (in *Ingester) bakeRotation(img image.Image, metadataSource []byte) ([]byte, int, error) {
	var rotation int
	if orientation, ok := ReadOrientation(metadataSource); ok {
		img = ApplyOrientation(img, orientation)
		rotation = OrientationDegrees(orientation)
	} else {
		rotation = in.DefaultRotation()
		img = Rotate(img, rotation)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(in.jpegQuality)); err != nil {
		return nil, 0, fmt.Errorf("%w: encode: %v", ErrDecodeFailed, err)
	}
	return buf.Bytes(), rotation, nil
}

// sweepLoop expires pending RAWs past their deadline into standalone
// processing.
func (in *Ingester) sweepLoop() {
	defer in.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-in.done.Done():
			return
		case <-ticker.C:
			in.sweepExpired(time.Now())
		}
	}
}

// sweepExpired collects overdue pending RAWs under the lock and
// processes them outside it, oldest deadline first.
func (in *Ingester) sweepExpired(now time.Time) {
	in.pendingMu.Lock()
	var due []*pendingRaw
	for id, p := range in.pending {
		if !now.Before(p.deadline) {
			due = append(due, p)
			delete(in.pending, id)
		}
	}
	in.pendingMu.Unlock()

	if len(due) == 0 {
		return
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, p := range due {
		id := camera.LogicalID(p.name)
		in.expired.Add(1)
		in.logDebug("pairing window expired, processing raw standalone",
			"logical_id", id)
		in.processRaw(id, p.name, p.event, SourceRaw)
	}
}

// reportDecodeFailure logs and emits a failed Result; the capture
// produces no cache entry and later captures are unaffected.
func (in *Ingester) reportDecodeFailure(id, name string, size int, err error) {
	in.decodeFailures.Add(1)
	in.logWarn("thumbnail decode failed", "logical_id", id, "error", err)
	in.emit(Result{
		LogicalID:       id,
		FileName:        name,
		ThumbnailSource: "none",
		Bytes:           size,
		Err:             err,
	})
}

// spoolToDisk writes the capture file under its normalised name.
// Failures are counted and logged; the in-memory pipeline continues.
func (in *Ingester) spoolToDisk(name string, data []byte) {
	path := filepath.Join(in.downloadDir, name)
	if err := os.WriteFile(path, data, downloadFilePerm); err != nil {
		in.diskFailures.Add(1)
		in.logError("spool write failed", "path", path, "error", err)
	}
}

// normalizeName strips configured vendor prefixes and any directory
// components from an incoming file name.
func (in *Ingester) normalizeName(name string) string {
	base := filepath.Base(name)
	for _, prefix := range in.stripPrefixes {
		if prefix == "" {
			continue
		}
		if trimmed := strings.TrimPrefix(base, prefix); trimmed != base && trimmed != "" {
			base = trimmed
			break
		}
	}
	return base
}

func (in *Ingester) emit(result Result) {
	in.callbackMu.RLock()
	fn := in.onResult
	in.callbackMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			in.logError("result callback panic", "logical_id", result.LogicalID, "panic", r)
		}
	}()
	fn(result)
}

func isUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func (in *Ingester) getLogger() Logger {
	in.loggerMu.RLock()
	defer in.loggerMu.RUnlock()
	return in.logger
}

func (in *Ingester) logDebug(msg string, keysAndValues ...any) {
	if l := in.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (in *Ingester) logInfo(msg string, keysAndValues ...any) {
	if l := in.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (in *Ingester) logWarn(msg string, keysAndValues ...any) {
	if l := in.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (in *Ingester) logError(msg string, keysAndValues ...any) {
	if l := in.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
