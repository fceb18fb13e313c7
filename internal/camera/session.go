package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default retry policy, overridable via SessionConfig.
const (
	defaultRetryAttempts   = 3
	defaultRetryBackoff    = 100 * time.Millisecond
	defaultRetryBackoffCap = 2 * time.Second

	// releaseTimeout bounds the best-effort device release after a
	// transport loss, where the caller's context may already be dead.
	releaseTimeout = 5 * time.Second
)

// ConnectionState is the lifecycle state of the device session.
type ConnectionState int

// Session states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateLost
	StateReleasing
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateLost:
		return "lost"
	case StateReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// IsConnected reports whether device operations are possible in this
// state. Degraded still holds an open device.
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected || s == StateDegraded
}

// StatusListener receives session state transitions. Listeners are
// invoked synchronously on the transitioning goroutine and must not
// block; reason is empty for routine transitions.
type StatusListener func(state ConnectionState, reason string)

// closeOnce wraps a channel that can be safely closed multiple times.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

// Close closes the channel. Safe to call multiple times.
func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

// Done returns the channel for select statements.
func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// SessionConfig holds session tuning. Zero values select the defaults.
type SessionConfig struct {
	// RetryAttempts is the total number of tries for a transient
	// failure before the session gives up and goes lost.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry; it doubles per
	// attempt up to RetryBackoffCap.
	RetryBackoff    time.Duration
	RetryBackoffCap time.Duration
}

// SessionStats is a point-in-time snapshot of session counters.
type SessionStats struct {
	State          ConnectionState
	Adapter        string
	FramesCaptured uint64
	Downloads      uint64
	Retries        uint64
	Errors         uint64
	Connects       uint64
	Losses         uint64
	LastActivity   time.Time
}

// Session owns the exclusive connection to one camera.
//
// All device access funnels through WithDevice, which holds the device
// lock for exactly the duration of one adapter call. Decode and disk
// work happen outside the lock, on copies taken while it was held, so a
// slow JPEG decode can never starve the capture loop.
//
// State transitions fan out to registered status listeners exactly once
// per transition; in particular a transport loss notifies once no matter
// how many concurrent operations observe it.
type Session struct {
	transport  Transport
	classifier *Classifier

	retryAttempts   int
	retryBackoff    time.Duration
	retryBackoffCap time.Duration

	// deviceMu serialises adapter calls and guards handle.
	deviceMu sync.Mutex
	handle   DeviceHandle

	stateMu   sync.Mutex
	state     ConnectionState
	listeners []StatusListener

	framesCaptured atomic.Uint64
	downloadsTotal atomic.Uint64
	retriesTotal   atomic.Uint64
	errorsTotal    atomic.Uint64
	connectsTotal  atomic.Uint64
	lostTotal      atomic.Uint64
	lastActivity   atomic.Int64 // unix seconds

	loggerMu sync.RWMutex
	logger   Logger
}

// NewSession creates a session over the given transport. The classifier
// decides which device errors are retried and which tear the link down.
func NewSession(transport Transport, classifier *Classifier, cfg SessionConfig) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("camera: transport is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("camera: classifier is required")
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.RetryBackoffCap <= 0 {
		cfg.RetryBackoffCap = defaultRetryBackoffCap
	}

	return &Session{
		transport:       transport,
		classifier:      classifier,
		retryAttempts:   cfg.RetryAttempts,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffCap: cfg.RetryBackoffCap,
		state:           StateDisconnected,
	}, nil
}

// SetLogger sets an optional logger.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	s.logger = logger
}

// RegisterStatusListener adds a listener for state transitions. Must be
// called before Connect; listeners cannot be removed.
func (s *Session) RegisterStatusListener(fn StatusListener) {
	if fn == nil {
		return
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State returns the current session state.
func (s *Session) State() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Adapter returns the transport's adapter name.
func (s *Session) Adapter() string {
	return s.transport.Name()
}

// Connect opens the device and moves the session to connected. It is a
// no-op when already connected and fails when a connect or release is
// in flight on another goroutine.
func (s *Session) Connect(ctx context.Context) error {
	s.stateMu.Lock()
	switch s.state {
	case StateConnected, StateDegraded:
		s.stateMu.Unlock()
		return nil
	case StateConnecting, StateReleasing:
		st := s.state
		s.stateMu.Unlock()
		return fmt.Errorf("%w: session busy (%s)", ErrConnectFailed, st)
	}
	s.state = StateConnecting
	s.stateMu.Unlock()
	s.notify(StateConnecting, "")

	s.deviceMu.Lock()
	handle, err := s.transport.OpenDevice(ctx)
	if err == nil {
		s.handle = handle
	}
	s.deviceMu.Unlock()

	if err != nil {
		s.errorsTotal.Add(1)
		s.setState(StateDisconnected)
		s.notify(StateDisconnected, fmt.Sprintf("connect failed: %v", err))
		s.logWarn("camera connect failed", "adapter", s.transport.Name(), "error", err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.connectsTotal.Add(1)
	s.touch()
	s.setState(StateConnected)
	s.notify(StateConnected, "")
	s.logInfo("camera connected", "adapter", s.transport.Name(), "handle", string(handle))
	return nil
}

// Disconnect releases the device in an orderly fashion. Release errors
// are logged and swallowed; the session always ends disconnected.
func (s *Session) Disconnect(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == StateDisconnected || s.state == StateReleasing {
		s.stateMu.Unlock()
		return nil
	}
	s.state = StateReleasing
	s.stateMu.Unlock()
	s.notify(StateReleasing, "")

	s.deviceMu.Lock()
	if s.handle != "" {
		if err := s.transport.Release(ctx, s.handle); err != nil {
			s.logWarn("device release failed", "error", err)
		}
		s.handle = ""
	}
	s.deviceMu.Unlock()

	s.setState(StateDisconnected)
	s.notify(StateDisconnected, "released")
	s.logInfo("camera disconnected", "adapter", s.transport.Name())
	return nil
}

// WithDevice runs op while holding the exclusive device lock. The lock
// spans exactly one adapter call per attempt; backoff sleeps happen
// outside it.
//
// Transient failures are retried up to the configured attempt count with
// exponential backoff, the session staying connected throughout. When
// retries are exhausted, or the failure is a transport loss or fatal,
// the session releases the device, transitions to lost, and the error is
// wrapped in ErrTransportLost.
func (s *Session) WithDevice(ctx context.Context, op func(ctx context.Context, t Transport, h DeviceHandle) error) error {
	backoff := s.retryBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.deviceMu.Lock()
		handle := s.handle
		if handle == "" || !s.State().IsConnected() {
			s.deviceMu.Unlock()
			return ErrNotConnected
		}
		err := op(ctx, s.transport, handle)
		s.deviceMu.Unlock()

		if err == nil {
			s.touch()
			return nil
		}
		// A cancelled context is shutdown, not a device fault.
		if ctx.Err() != nil {
			return err
		}

		s.errorsTotal.Add(1)
		severity := s.classifier.Classify(err)

		if severity == SeverityTransient {
			if attempt >= s.retryAttempts {
				s.logWarn("device retries exhausted",
					"attempts", attempt, "error", err)
				s.transitionLost(fmt.Sprintf("retries exhausted: %v", err))
				return fmt.Errorf("%w: %w", ErrTransportLost, err)
			}
			s.retriesTotal.Add(1)
			s.logDebug("transient device error, retrying",
				"attempt", attempt, "backoff", backoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.retryBackoffCap {
				backoff = s.retryBackoffCap
			}
			continue
		}

		s.logWarn("device transport failure",
			"severity", severity.String(), "error", err)
		s.transitionLost(fmt.Sprintf("%s: %v", severity, err))
		return fmt.Errorf("%w: %w", ErrTransportLost, err)
	}
}

// CapturePreview captures one live-view frame. The returned frame owns
// its bytes; the copy is taken while the device lock is held.
func (s *Session) CapturePreview(ctx context.Context) (PreviewFrame, error) {
	var frame PreviewFrame
	err := s.WithDevice(ctx, func(ctx context.Context, t Transport, h DeviceHandle) error {
		data, err := t.CapturePreview(ctx, h)
		if err != nil {
			return err
		}
		frame = PreviewFrame{
			Data:       append([]byte(nil), data...),
			CapturedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return PreviewFrame{}, err
	}
	s.framesCaptured.Add(1)
	return frame, nil
}

// PollEvents drains pending capture-file events from the camera.
func (s *Session) PollEvents(ctx context.Context) ([]FileEvent, error) {
	var events []FileEvent
	err := s.WithDevice(ctx, func(ctx context.Context, t Transport, h DeviceHandle) error {
		evs, err := t.PollEvents(ctx, h)
		if err != nil {
			return err
		}
		events = append([]FileEvent(nil), evs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DownloadFile fetches a capture file's payload. The returned slice owns
// its bytes.
func (s *Session) DownloadFile(ctx context.Context, ev FileEvent) ([]byte, error) {
	var data []byte
	err := s.WithDevice(ctx, func(ctx context.Context, t Transport, h DeviceHandle) error {
		payload, err := t.DownloadFile(ctx, h, ev)
		if err != nil {
			return err
		}
		data = append([]byte(nil), payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.downloadsTotal.Add(1)
	return data, nil
}

// MarkDegraded moves a connected session to degraded. Used by the
// scheduler when the preview stream turns unhealthy while the device
// link itself still answers.
func (s *Session) MarkDegraded(reason string) {
	s.stateMu.Lock()
	if s.state != StateConnected {
		s.stateMu.Unlock()
		return
	}
	s.state = StateDegraded
	s.stateMu.Unlock()
	s.logWarn("camera degraded", "reason", reason)
	s.notify(StateDegraded, reason)
}

// MarkHealthy moves a degraded session back to connected.
func (s *Session) MarkHealthy() {
	s.stateMu.Lock()
	if s.state != StateDegraded {
		s.stateMu.Unlock()
		return
	}
	s.state = StateConnected
	s.stateMu.Unlock()
	s.logInfo("camera recovered")
	s.notify(StateConnected, "recovered")
}

// MarkLost forces the session to lost, releasing the device best-effort.
// Used by the scheduler when the preview stream is irrecoverably corrupt
// and a full reconnect is the only fix.
func (s *Session) MarkLost(reason string) {
	s.transitionLost(reason)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	var last time.Time
	if ts := s.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return SessionStats{
		State:          s.State(),
		Adapter:        s.transport.Name(),
		FramesCaptured: s.framesCaptured.Load(),
		Downloads:      s.downloadsTotal.Load(),
		Retries:        s.retriesTotal.Load(),
		Errors:         s.errorsTotal.Load(),
		Connects:       s.connectsTotal.Load(),
		Losses:         s.lostTotal.Load(),
		LastActivity:   last,
	}
}

// transitionLost performs the one-way lost transition: state change,
// best-effort release with errors swallowed, and a single listener
// notification. Re-entrant calls after the first are no-ops.
func (s *Session) transitionLost(reason string) {
	s.stateMu.Lock()
	switch s.state {
	case StateLost, StateReleasing, StateDisconnected:
		s.stateMu.Unlock()
		return
	}
	s.state = StateLost
	s.stateMu.Unlock()

	s.lostTotal.Add(1)

	s.deviceMu.Lock()
	if s.handle != "" {
		relCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		if err := s.transport.Release(relCtx, s.handle); err != nil {
			s.logDebug("release after transport loss failed", "error", err)
		}
		cancel()
		s.handle = ""
	}
	s.deviceMu.Unlock()

	s.logError("camera transport lost", "reason", reason)
	s.notify(StateLost, reason)
}

func (s *Session) setState(state ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// notify invokes every status listener synchronously. A panicking
// listener is contained so it cannot take the session down.
func (s *Session) notify(state ConnectionState, reason string) {
	s.stateMu.Lock()
	listeners := make([]StatusListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.stateMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logError("status listener panic",
						"state", state.String(), "panic", r)
				}
			}()
			fn(state, reason)
		}()
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().Unix())
}

func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
