package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher defaults.
const (
	defaultWatchInterval    = 2 * time.Second
	defaultWatchMaxInterval = 60 * time.Second

	// watchBackoffFactor grows the retry delay after each failed
	// reconnect attempt, up to the max interval.
	watchBackoffFactor = 1.5
)

// WatcherConfig holds reconnect tuning. Zero values select the defaults.
type WatcherConfig struct {
	// Interval is the poll period while the session is healthy and the
	// starting delay for reconnect attempts.
	Interval time.Duration

	// MaxInterval caps the backoff between failed reconnect attempts.
	MaxInterval time.Duration
}

// WatcherStats is a point-in-time snapshot of watcher counters.
type WatcherStats struct {
	Running        bool
	Reconnects     uint64
	FailedAttempts uint64
}

// Watcher restores a lost or disconnected session. It polls the session
// state and, when the camera is away, attempts a reconnect with growing
// backoff: each failed attempt multiplies the delay by 1.5 up to the
// configured max, and any success resets it.
type Watcher struct {
	session *Session

	interval    time.Duration
	maxInterval time.Duration

	done    *closeOnce
	wg      sync.WaitGroup
	running atomic.Bool

	reconnectsTotal atomic.Uint64
	failedAttempts  atomic.Uint64

	loggerMu sync.RWMutex
	logger   Logger
}

// NewWatcher creates a watcher over the given session.
func NewWatcher(session *Session, cfg WatcherConfig) (*Watcher, error) {
	if session == nil {
		return nil, fmt.Errorf("camera: session is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultWatchInterval
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = defaultWatchMaxInterval
	}

	return &Watcher{
		session:     session,
		interval:    cfg.Interval,
		maxInterval: cfg.MaxInterval,
		done:        newCloseOnce(),
	}, nil
}

// SetLogger sets an optional logger.
func (w *Watcher) SetLogger(logger Logger) {
	w.loggerMu.Lock()
	defer w.loggerMu.Unlock()
	w.logger = logger
}

// Start launches the watch loop. A watcher runs once; after Stop it
// cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: watcher", ErrAlreadyRunning)
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logInfo("camera watcher started",
		"interval", w.interval.String(), "max_interval", w.maxInterval.String())
	return nil
}

// Stop halts the watch loop.
func (w *Watcher) Stop() {
	w.done.Close()
	w.wg.Wait()
	w.running.Store(false)
	w.logInfo("camera watcher stopped")
}

// Stats returns a snapshot of the watcher counters.
func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Running:        w.running.Load(),
		Reconnects:     w.reconnectsTotal.Load(),
		FailedAttempts: w.failedAttempts.Load(),
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	backoff := w.interval

	for {
		select {
		case <-w.done.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		state := w.session.State()
		if state != StateLost && state != StateDisconnected {
			backoff = w.interval
			continue
		}

		w.logInfo("attempting camera reconnect",
			"state", state.String(), "backoff", backoff.String())

		if err := w.session.Connect(ctx); err != nil {
			w.failedAttempts.Add(1)
			w.logDebug("reconnect attempt failed", "error", err)
			backoff = time.Duration(float64(backoff) * watchBackoffFactor)
			if backoff > w.maxInterval {
				backoff = w.maxInterval
			}
			continue
		}

		w.reconnectsTotal.Add(1)
		w.logInfo("camera session restored",
			"reconnects", w.reconnectsTotal.Load())
		backoff = w.interval
	}
}

func (w *Watcher) getLogger() Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	return w.logger
}

func (w *Watcher) logDebug(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (w *Watcher) logInfo(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}
