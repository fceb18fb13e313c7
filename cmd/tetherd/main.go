// StudioTether - Tethered Camera Capture Daemon
//
// This is the main entry point for the StudioTether daemon. StudioTether
// keeps a studio camera on a tether: it supervises the device session,
// pulls live-view frames, downloads captures the moment the shutter
// fires and serves a navigable preview cache to the operator's monitor.
//
//   - Session supervision with retry classification and auto-reconnect
//   - Live-view capture loop with corrupt-frame escalation
//   - RAW+companion ingest into a bounded, navigable preview cache
//   - Capture catalog and session audit trail in SQLite
//   - Local monitor API (REST + WebSocket) for the operator UI
//   - Optional MQTT status/event publishing, remote commands and
//     InfluxDB telemetry
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mkarlberg/studiotether/migrations"

	"github.com/mkarlberg/studiotether/internal/adapters/sim"
	"github.com/mkarlberg/studiotether/internal/camera"
	"github.com/mkarlberg/studiotether/internal/catalog"
	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
	"github.com/mkarlberg/studiotether/internal/infrastructure/database"
	"github.com/mkarlberg/studiotether/internal/infrastructure/logging"
	"github.com/mkarlberg/studiotether/internal/infrastructure/mqtt"
	"github.com/mkarlberg/studiotether/internal/infrastructure/telemetry"
	"github.com/mkarlberg/studiotether/internal/monitor"
	"github.com/mkarlberg/studiotether/internal/preview"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path, used when STUDIOTETHER_CONFIG is unset.
const defaultConfigPath = "configs/config.yaml"

// configPathEnv overrides the configuration file location.
const configPathEnv = "STUDIOTETHER_CONFIG"

const (
	// initialConnectTimeout bounds the first connect attempt at startup.
	// A camera that is off or unplugged must not stall the daemon; the
	// reconnect watcher keeps trying in the background.
	initialConnectTimeout = 10 * time.Second

	// recordTimeout bounds catalog writes made from event callbacks.
	recordTimeout = 5 * time.Second

	// disconnectTimeout bounds the device release during shutdown.
	disconnectTimeout = 5 * time.Second

	// sessionEventBuffer absorbs bursts of state transitions; the
	// session's status listeners must never block.
	sessionEventBuffer = 64
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting StudioTether",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Capture catalog backs both the ingest pipeline and the monitor API
	repo := catalog.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB telemetry (optional)
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the transport adapter and the session around it
	transport, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	classifier := camera.NewClassifier(
		cfg.Camera.ErrorClasses.Transient,
		cfg.Camera.ErrorClasses.Lost,
		cfg.Camera.ErrorClasses.Fatal,
	)

	session, err := camera.NewSession(transport, classifier, camera.SessionConfig{
		RetryAttempts:   cfg.Camera.Retry.Attempts,
		RetryBackoff:    cfg.GetRetryBackoffBase(),
		RetryBackoffCap: cfg.GetRetryBackoffCap(),
	})
	if err != nil {
		return fmt.Errorf("creating camera session: %w", err)
	}
	session.SetLogger(log)
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer releaseCancel()
		if discErr := session.Disconnect(releaseCtx); discErr != nil {
			log.Error("error disconnecting camera", "error", discErr)
		}
	}()

	scheduler, err := camera.NewScheduler(session, camera.SchedulerConfig{
		MinFrameInterval:  cfg.GetMinFrameInterval(),
		CorruptFrameLimit: cfg.Camera.CorruptFrameLimit,
	})
	if err != nil {
		return fmt.Errorf("creating capture scheduler: %w", err)
	}
	scheduler.SetLogger(log)

	// Preview cache and ingest pipeline
	cache := preview.NewCache(cfg.Preview.CacheCapacity)
	ingester, err := preview.NewIngester(cache, preview.IngestConfig{
		DownloadDir:     cfg.Preview.DownloadDir,
		PairTimeout:     cfg.GetPairTimeout(),
		DefaultRotation: cfg.Preview.DefaultRotation,
		JPEGQuality:     cfg.Preview.JPEGQuality,
		StripPrefixes:   cfg.Preview.StripPrefixes,
	}, preview.ExifThumbnailDecoder{})
	if err != nil {
		return fmt.Errorf("creating preview ingester: %w", err)
	}
	ingester.SetLogger(log)

	// Reconcile the download directory before anything writes to it:
	// orphaned RAWs go, surviving companions repopulate the cache.
	recon, err := ingester.ReconcileStartup()
	if err != nil {
		return fmt.Errorf("reconciling download directory: %w", err)
	}
	log.Info("download directory reconciled",
		"dir", cfg.Preview.DownloadDir,
		"companions_loaded", recon.CompanionsLoaded,
		"raw_deleted", recon.RawDeleted,
		"dotfiles_deleted", recon.DotfilesDeleted,
		"failures", recon.Failures,
	)

	// The WebSocket hub is created unconditionally so every broadcast
	// call site stays simple; with the monitor disabled it just has no
	// clients to deliver to.
	hub := monitor.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Health reporter needs a publisher; skip it entirely without MQTT.
	// Assigning a nil *mqtt.Client to the HealthPublisher interface
	// would produce a non-nil interface holding a nil pointer.
	var reporter *camera.HealthReporter
	if mqttClient != nil {
		reporter = camera.NewHealthReporter(camera.HealthReporterConfig{
			DaemonID:  cfg.MQTT.Broker.ClientID,
			Version:   version,
			Topic:     mqtt.Topics{}.SystemStatus(),
			Publisher: mqttClient,
			Session:   session,
			Scheduler: scheduler,
		})
		reporter.SetLogger(log)
	}

	// Monitor API server (optional)
	var srv *monitor.Server
	if cfg.Monitor.Enabled {
		srv, err = monitor.New(monitor.Deps{
			Config:      cfg.Monitor,
			WS:          cfg.WebSocket,
			Logger:      log,
			Session:     session,
			Scheduler:   scheduler,
			Cache:       cache,
			Ingester:    ingester,
			Catalog:     repo,
			ExternalHub: hub,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating monitor server: %w", err)
		}
	} else {
		log.Info("monitor API disabled")
	}

	// Wire the pipeline together. Callbacks are registered before any
	// component starts so no event can slip past unobserved.
	events := make(chan sessionEvent, sessionEventBuffer)
	session.RegisterStatusListener(func(state camera.ConnectionState, reason string) {
		select {
		case events <- sessionEvent{state: state, reason: reason}:
		default:
			log.Warn("session event dropped, consumer backlogged",
				"state", state.String(), "reason", reason)
		}
	})
	go consumeSessionEvents(ctx, events, eventDeps{
		log:       log,
		catalog:   repo,
		mqtt:      mqttClient,
		telemetry: telemetryClient,
		hub:       hub,
		daemonID:  cfg.MQTT.Broker.ClientID,
		adapter:   session.Adapter(),
		qos:       byte(cfg.MQTT.QoS),
	})

	// The scheduler invokes the frame callback sequentially from its
	// frame worker, so lastFrameAt needs no lock.
	var lastFrameAt time.Time
	scheduler.SetOnFrame(func(frame camera.PreviewFrame) {
		if srv != nil {
			srv.UpdateFrame(frame)
		}
		if hub.ClientCount() > 0 {
			hub.Broadcast(monitor.ChannelFrame, frameEvent{
				CapturedAt: frame.CapturedAt,
				Bytes:      len(frame.Data),
				Frame:      frame.Data,
			})
		}
		var intervalMS float64
		if !lastFrameAt.IsZero() {
			intervalMS = float64(frame.CapturedAt.Sub(lastFrameAt).Microseconds()) / 1000.0
		}
		lastFrameAt = frame.CapturedAt
		telemetryClient.WriteFrameMetric(session.Adapter(), intervalMS, len(frame.Data))
	})

	scheduler.SetOnDownload(ingester.HandleDownload)

	ingester.SetOnResult(func(res preview.Result) {
		recordCapture(log, repo, cache, res)
		if res.Err != nil {
			return
		}
		msg := &camera.CaptureEventMessage{
			Daemon:          cfg.MQTT.Broker.ClientID,
			Timestamp:       time.Now().UTC(),
			CaptureID:       res.LogicalID,
			FileName:        res.FileName,
			Kind:            camera.ClassifyFile(res.FileName).String(),
			Bytes:           res.Bytes,
			Paired:          res.Paired,
			ThumbnailSource: res.ThumbnailSource,
		}
		publishEvent(log, mqttClient, mqtt.Topics{}.CaptureEvent(), byte(cfg.MQTT.QoS), msg)
		hub.Broadcast(monitor.ChannelCapture, msg)
		telemetryClient.WriteIngestMetric(res.Source.String(), res.Paired,
			float64(res.DecodeDuration.Microseconds())/1000.0)
	})

	cache.SetOnUpdated(func(logicalID string) {
		hub.Broadcast(monitor.ChannelCacheUpdated, cacheEvent{
			LogicalID: logicalID,
			Entries:   cache.Len(),
		})
		if reporter != nil {
			reporter.SetCacheEntries(cache.Len())
		}
	})

	// Remote command surface: controllers publish to
	// studiotether/cmd/<name> to drive navigation and capture settings
	// without going through the monitor API.
	if mqttClient != nil {
		handler := commandHandler(commandDeps{
			log:       log,
			cache:     cache,
			ingester:  ingester,
			scheduler: scheduler,
		})
		if subErr := mqttClient.Subscribe(mqtt.Topics{}.AllCommands(), byte(cfg.MQTT.QoS), handler); subErr != nil {
			return fmt.Errorf("subscribing to command topics: %w", subErr)
		}
		log.Info("remote commands enabled", "topic", mqtt.Topics{}.AllCommands())
	}

	// Start the pipeline: ingester first (downloads need a consumer),
	// then the monitor so reconciled previews are browsable even before
	// the camera answers.
	if startErr := ingester.Start(); startErr != nil {
		return fmt.Errorf("starting preview ingester: %w", startErr)
	}
	defer func() {
		log.Info("stopping preview ingester")
		ingester.Stop()
	}()

	if srv != nil {
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting monitor server: %w", startErr)
		}
		defer func() {
			log.Info("stopping monitor server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing monitor server", "error", closeErr)
			}
		}()
	}

	// First connect attempt. Failure is not fatal: the watcher keeps
	// retrying and the monitor stays useful on the reconciled cache.
	connectCtx, connectCancel := context.WithTimeout(ctx, initialConnectTimeout)
	if connectErr := session.Connect(connectCtx); connectErr != nil {
		log.Warn("initial camera connect failed",
			"adapter", session.Adapter(),
			"watcher_enabled", cfg.Camera.Watcher.Enabled,
			"error", connectErr,
		)
	} else {
		log.Info("camera connected", "adapter", session.Adapter())
	}
	connectCancel()

	if startErr := scheduler.Start(ctx); startErr != nil {
		return fmt.Errorf("starting capture scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping capture scheduler")
		scheduler.Stop()
	}()

	// Reconnect watcher (optional)
	if cfg.Camera.Watcher.Enabled {
		watcher, watchErr := camera.NewWatcher(session, camera.WatcherConfig{
			Interval:    cfg.GetWatcherInterval(),
			MaxInterval: cfg.GetWatcherMaxInterval(),
		})
		if watchErr != nil {
			return fmt.Errorf("creating reconnect watcher: %w", watchErr)
		}
		watcher.SetLogger(log)
		if startErr := watcher.Start(ctx); startErr != nil {
			return fmt.Errorf("starting reconnect watcher: %w", startErr)
		}
		defer func() {
			log.Info("stopping reconnect watcher")
			watcher.Stop()
		}()
	} else {
		log.Info("reconnect watcher disabled")
	}

	if reporter != nil {
		reporter.Start(ctx)
		defer func() {
			log.Info("stopping health reporter")
			reporter.Stop()
		}()
		log.Info("health reporter started", "topic", reporter.Topic())
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient, srv); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order:
	// health reporter, watcher, scheduler, monitor, ingester, session
	// release, then the infrastructure clients and the database.

	log.Info("StudioTether stopped")
	return nil
}

// loadConfig resolves the runtime configuration.
//
// An explicit STUDIOTETHER_CONFIG path must exist. The default path is
// optional: when absent, the built-in defaults apply (sim adapter,
// local paths) so the daemon runs without any setup.
//
// Parameters:
//   - log: Logger for reporting the chosen source
//
// Returns:
//   - *config.Config: Validated configuration
//   - error: If the file cannot be read, parsed or validated
func loadConfig(log *logging.Logger) (*config.Config, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.Load(defaultConfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		log.Info("configuration loaded", "path", defaultConfigPath)
		return cfg, nil
	}

	cfg, err := config.Default()
	if err != nil {
		return nil, fmt.Errorf("building default config: %w", err)
	}
	log.Info("no config file found, using built-in defaults")
	return cfg, nil
}

// buildTransport constructs the transport adapter named by the config.
//
// Only the simulated adapter ships in this repo; vendor adapters plug in
// behind the same interface with their own error classification tables.
//
// Parameters:
//   - cfg: Application configuration
//
// Returns:
//   - camera.Transport: The adapter instance
//   - error: If the adapter name is unknown
func buildTransport(cfg *config.Config) (camera.Transport, error) {
	switch cfg.Camera.Adapter {
	case "sim":
		return sim.New(sim.Config{
			ShotInterval: time.Duration(cfg.Camera.Sim.ShotIntervalMS) * time.Millisecond,
			FailEveryN:   cfg.Camera.Sim.FailEveryN,
		}), nil
	default:
		return nil, fmt.Errorf("unknown camera adapter %q (supported: sim)", cfg.Camera.Adapter)
	}
}

// sessionEvent is one state transition queued for the event consumer.
type sessionEvent struct {
	state  camera.ConnectionState
	reason string
}

// eventDeps bundles the sinks a session event fans out to. The mqtt and
// telemetry clients may be nil when those subsystems are disabled.
type eventDeps struct {
	log       *logging.Logger
	catalog   catalog.Repository
	mqtt      *mqtt.Client
	telemetry *telemetry.Client
	hub       *monitor.Hub
	daemonID  string
	adapter   string
	qos       byte
}

// consumeSessionEvents drains the session event channel, recording each
// transition to the catalog and fanning it out to MQTT, the WebSocket
// hub and telemetry. Runs until the context is cancelled, then drains
// whatever the producers managed to queue.
func consumeSessionEvents(ctx context.Context, events <-chan sessionEvent, deps eventDeps) {
	handle := func(ev sessionEvent) {
		recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := deps.catalog.RecordSessionEvent(recordCtx, ev.state.String(), ev.reason); err != nil {
			deps.log.Error("failed to record session event",
				"state", ev.state.String(), "error", err)
		}
		cancel()

		msg := camera.NewConnectionEventMessage(deps.daemonID, deps.adapter, ev.state, ev.reason)
		publishEvent(deps.log, deps.mqtt, mqtt.Topics{}.ConnectionEvent(), deps.qos, msg)
		deps.hub.Broadcast(monitor.ChannelConnection, msg)
		deps.telemetry.WriteSessionState(ev.state.String(), int(ev.state))
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					handle(ev)
				default:
					return
				}
			}
		case ev := <-events:
			handle(ev)
		}
	}
}

// commandDeps bundles what remote commands may touch. Every field is
// non-nil by the time the subscription is made.
type commandDeps struct {
	log       *logging.Logger
	cache     *preview.Cache
	ingester  *preview.Ingester
	scheduler *camera.Scheduler
}

// commandHandler returns the handler for studiotether/cmd/# messages.
// The command is the topic's final segment and payloads mirror the
// monitor API request bodies. Malformed or unknown commands come back
// as errors for the MQTT client to log; they never stop the router.
func commandHandler(deps commandDeps) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		switch name := strings.TrimPrefix(topic, mqtt.TopicPrefixCommand+"/"); name {
		case "navigate":
			var req monitor.NavigateRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("navigate command: %w", err)
			}
			var (
				entry preview.Entry
				ok    bool
			)
			switch req.Direction {
			case "next":
				entry, ok = deps.cache.Next()
			case "previous":
				entry, ok = deps.cache.Previous()
			case "latest":
				entry, ok = deps.cache.Latest()
			default:
				return fmt.Errorf("navigate command: unknown direction %q", req.Direction)
			}
			if !ok {
				deps.log.Debug("navigate command ignored, cache empty",
					"direction", req.Direction)
				return nil
			}
			deps.log.Info("preview cursor moved",
				"direction", req.Direction,
				"logical_id", entry.LogicalID,
			)
			return nil

		case "rotation":
			var req monitor.RotationRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("rotation command: %w", err)
			}
			if !preview.ValidRotation(req.Degrees) {
				return fmt.Errorf("rotation command: %d degrees not one of 0/90/180/270", req.Degrees)
			}
			if err := deps.ingester.SetDefaultRotation(req.Degrees); err != nil {
				return fmt.Errorf("rotation command: %w", err)
			}
			deps.log.Info("default rotation updated", "degrees", req.Degrees, "via", "mqtt")
			return nil

		case "interval":
			var req monitor.IntervalRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("interval command: %w", err)
			}
			if req.MS < 1 {
				return fmt.Errorf("interval command: %d ms is not positive", req.MS)
			}
			if err := deps.scheduler.SetMinFrameInterval(time.Duration(req.MS) * time.Millisecond); err != nil {
				return fmt.Errorf("interval command: %w", err)
			}
			deps.log.Info("frame interval updated", "ms", req.MS, "via", "mqtt")
			return nil

		default:
			return fmt.Errorf("unknown command %q", name)
		}
	}
}

// recordCapture writes one ingest result to the catalog. Failed decodes
// are recorded too; the audit trail should show what went wrong, not
// hide it.
func recordCapture(log *logging.Logger, repo catalog.Repository, cache *preview.Cache, res preview.Result) {
	capture := &catalog.Capture{
		LogicalID:    res.LogicalID,
		SourceKind:   res.Source.String(),
		DecodeStatus: "ok",
		IngestedAt:   time.Now().UTC(),
	}

	switch camera.ClassifyFile(res.FileName) {
	case camera.KindRaw:
		capture.RawFile = res.FileName
	case camera.KindCompanion:
		capture.CompanionFile = res.FileName
	}

	if res.Err != nil {
		// Source is meaningless on failure; classify from the file name.
		capture.SourceKind = camera.ClassifyFile(res.FileName).String()
		capture.DecodeStatus = "failed"
		log.Warn("capture ingest failed",
			"logical_id", res.LogicalID,
			"file", res.FileName,
			"error", res.Err,
		)
	} else if entry, ok := cache.Get(res.LogicalID); ok {
		capture.ThumbnailBytes = len(entry.Thumbnail)
		capture.Rotation = entry.RotationDegrees
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := repo.RecordCapture(recordCtx, capture); err != nil {
		log.Error("failed to record capture",
			"logical_id", res.LogicalID, "error", err)
	}
}

// publishEvent marshals and publishes an event message. A nil client
// (MQTT disabled) is a no-op; publish failures are logged, never fatal.
func publishEvent(log *logging.Logger, client *mqtt.Client, topic string, qos byte, msg any) {
	if client == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to marshal event message", "topic", topic, "error", err)
		return
	}
	if err := client.Publish(topic, payload, qos, false); err != nil {
		log.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// frameEvent is the WebSocket payload for live-view frames. Frame is
// base64-encoded by encoding/json.
type frameEvent struct {
	CapturedAt time.Time `json:"captured_at"`
	Bytes      int       `json:"bytes"`
	Frame      []byte    `json:"frame"`
}

// cacheEvent is the WebSocket payload for preview cache updates.
type cacheEvent struct {
	LogicalID string `json:"logical_id"`
	Entries   int    `json:"entries"`
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - telemetryClient: InfluxDB client to check (may be nil if disabled)
//   - srv: Monitor server to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client, srv *monitor.Server) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	// Check monitor server (if enabled)
	if srv != nil {
		if err := srv.HealthCheck(ctx); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}

	return nil
}
