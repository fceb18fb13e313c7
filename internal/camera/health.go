package camera

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthTopic is the retained status topic when none is
// configured.
const defaultHealthTopic = "studiotether/status"

// defaultHealthInterval spaces the periodic status publishes.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the outbound side of the status feed, implemented
// by the MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// DaemonID identifies this daemon in status messages.
	DaemonID string

	// Version is the daemon software version.
	Version string

	// Topic overrides the retained status topic.
	// Default: studiotether/status.
	Topic string

	// Interval overrides the publish cadence. Default: 30 seconds.
	Interval time.Duration

	// Publisher carries the status messages. With a nil publisher every
	// publish is a silent no-op.
	Publisher HealthPublisher

	// Session provides device state and counters.
	Session *Session

	// Scheduler provides capture-loop counters. Optional.
	Scheduler *Scheduler
}

// HealthReporter publishes a retained daemon status message on a fixed
// cadence: overall status, session and scheduler counters, preview
// cache population and uptime.
type HealthReporter struct {
	cfg     HealthReporterConfig
	topic   string
	started time.Time

	mu           sync.Mutex
	cacheEntries int
	logger       Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewHealthReporter builds a reporter. Nothing publishes until Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	topic := cfg.Topic
	if topic == "" {
		topic = defaultHealthTopic
	}

	return &HealthReporter{
		cfg:     cfg,
		topic:   topic,
		started: time.Now(),
	}
}

// Start launches the publish loop: one status immediately, then one per
// interval.
func (h *HealthReporter) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	go h.loop(runCtx)
}

// Stop halts the loop and publishes a final "stopping" status, so the
// retained topic never advertises a dead daemon as online. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()

		//nolint:errcheck // shutdown is best-effort
		h.publish(HealthStopping, "")
	})
}

// SetCacheEntries updates the preview cache population carried in
// status messages.
func (h *HealthReporter) SetCacheEntries(n int) {
	h.mu.Lock()
	h.cacheEntries = n
	h.mu.Unlock()
}

// SetLogger attaches a logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// Topic returns the retained status topic.
func (h *HealthReporter) Topic() string {
	return h.topic
}

// PublishNow pushes the current status immediately, outside the regular
// cadence.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.assess()
	return h.publish(status, reason)
}

func (h *HealthReporter) loop(ctx context.Context) {
	defer h.wg.Done()

	tick := time.NewTicker(h.cfg.Interval)
	defer tick.Stop()

	h.publishLogged()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			h.publishLogged()
		}
	}
}

// publishLogged is the loop-side publish: failures go to the logger
// because nobody else is listening for them.
func (h *HealthReporter) publishLogged() {
	err := h.PublishNow()
	if err == nil {
		return
	}

	h.mu.Lock()
	logger := h.logger
	h.mu.Unlock()
	if logger != nil {
		logger.Error("failed to publish health", "error", err)
	}
}

// assess decides what status the daemon should advertise.
func (h *HealthReporter) assess() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Session == nil {
		return HealthDegraded, "no device session"
	}
	if st := h.cfg.Session.State(); st != StateConnected {
		return HealthDegraded, "camera " + st.String()
	}
	return HealthOnline, ""
}

// publish assembles and sends one retained status message.
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	h.mu.Lock()
	entries := h.cacheEntries
	h.mu.Unlock()

	var sessionStats SessionStats
	if h.cfg.Session != nil {
		sessionStats = h.cfg.Session.Stats()
	}
	var schedStats SchedulerStats
	if h.cfg.Scheduler != nil {
		schedStats = h.cfg.Scheduler.Stats()
	}

	msg := NewHealthMessage(h.cfg.DaemonID, h.cfg.Version, status, sessionStats, schedStats, entries, h.started)
	if reason != "" {
		msg.Reason = reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.cfg.Publisher.Publish(h.topic, payload, 1, true)
}
