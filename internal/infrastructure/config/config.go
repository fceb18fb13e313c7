package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for StudioTether.
// Values come from a YAML file layered over built-in defaults, with a
// small set of environment variables taking precedence over both.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Preview   PreviewConfig   `yaml:"preview"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CameraConfig contains device session and capture loop settings.
type CameraConfig struct {
	// Adapter selects the transport adapter: "sim" or a vendor adapter name.
	Adapter string `yaml:"adapter"`

	// MinFrameIntervalMS is the minimum spacing between preview frame
	// captures. Requests arriving sooner are delayed, not dropped.
	MinFrameIntervalMS int `yaml:"min_frame_interval_ms"`

	// CorruptFrameLimit is the number of consecutive undecodable preview
	// frames tolerated before the session is treated as lost.
	CorruptFrameLimit int `yaml:"corrupt_frame_limit"`

	Retry        RetryConfig      `yaml:"retry"`
	Watcher      WatcherConfig    `yaml:"watcher"`
	ErrorClasses ErrorClassConfig `yaml:"error_classes"`
	Sim          SimConfig        `yaml:"sim"`
}

// RetryConfig contains transient-failure retry settings for device calls.
type RetryConfig struct {
	// Attempts is the total number of tries per device call (first try included).
	Attempts int `yaml:"attempts"`

	// BackoffMS is the delay before the first retry; it doubles per retry.
	BackoffMS int `yaml:"backoff_ms"`

	// BackoffCapMS bounds the doubled delay.
	BackoffCapMS int `yaml:"backoff_cap_ms"`
}

// WatcherConfig contains automatic reconnect settings.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`

	// IntervalMS is the initial delay between reconnect attempts. It grows
	// by half per failed attempt up to MaxIntervalMS and resets on success.
	IntervalMS    int `yaml:"interval_ms"`
	MaxIntervalMS int `yaml:"max_interval_ms"`
}

// ErrorClassConfig maps adapter-specific error codes onto the failure
// taxonomy. Codes not listed anywhere are treated as fatal.
type ErrorClassConfig struct {
	Transient []int `yaml:"transient"`
	Lost      []int `yaml:"lost"`
	Fatal     []int `yaml:"fatal"`
}

// SimConfig contains settings for the simulated transport adapter.
type SimConfig struct {
	// ShotIntervalMS is the cadence of simulated shutter releases
	// (each produces a RAW+JPEG pair). 0 disables simulated captures.
	ShotIntervalMS int `yaml:"shot_interval_ms"`

	// FailEveryN injects a transient failure on every Nth preview
	// capture. 0 disables fault injection.
	FailEveryN int `yaml:"fail_every_n"`
}

// PreviewConfig contains ingestion pipeline and cache settings.
type PreviewConfig struct {
	// DownloadDir is where capture files land. "~" expands to the home directory.
	DownloadDir string `yaml:"download_dir"`

	// PairTimeoutMS is how long an unmatched RAW waits for its companion
	// before being processed standalone.
	PairTimeoutMS int `yaml:"pair_timeout_ms"`

	// CacheCapacity bounds the preview cache; oldest entries are evicted.
	CacheCapacity int `yaml:"cache_capacity"`

	// DefaultRotation (degrees, clockwise) applies when a file carries no
	// orientation metadata. Must be 0, 90, 180 or 270.
	DefaultRotation int `yaml:"default_rotation"`

	// JPEGQuality is the re-encode quality for rotated/extracted thumbnails.
	JPEGQuality int `yaml:"jpeg_quality"`

	// StripPrefixes are removed from incoming file names before the
	// logical id is derived.
	StripPrefixes []string `yaml:"strip_prefixes"`
}

// DatabaseConfig holds the SQLite settings. BusyTimeout is in seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig groups everything needed for the broker session. With
// Enabled false the daemon runs monitor-API-only.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig identifies the broker endpoint.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials. Prefer the environment
// variables over the file for the password.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the broker retry loop, which runs until it
// succeeds. Both delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MonitorConfig configures the local HTTP/WebSocket monitor API.
type MonitorConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Host     string               `yaml:"host"`
	Port     int                  `yaml:"port"`
	TLS      TLSConfig            `yaml:"tls"`
	Timeouts MonitorTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig           `yaml:"cors"`
}

// TLSConfig points at the monitor API certificate pair.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MonitorTimeoutConfig sets the HTTP server timeouts, in seconds.
type MonitorTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig is the browser cross-origin allowlist for the monitor API.
// Empty origins echo whatever origin asks.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the live event feed. Intervals are in seconds,
// MaxMessageSize in bytes.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// TelemetryConfig points metric writes at an InfluxDB 2.x instance.
// FlushInterval is in seconds.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// File, when set, routes log output to a size-rotated file instead
	// of stdout/stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load parses the YAML file at path on top of the built-in defaults,
// then lets environment variables override both. Precedence, lowest
// first: defaults, file, environment.
//
// Override variables are named STUDIOTETHER_SECTION_KEY, e.g.
// STUDIOTETHER_DATABASE_PATH or STUDIOTETHER_MQTT_HOST.
//
// Parameters:
//   - path: YAML file to read
//
// Returns:
//   - *Config: the merged, validated configuration
//   - error: unreadable file, bad YAML, or failed validation
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return finalise(cfg)
}

// Default returns the built-in configuration with environment variable
// overrides applied. Used when no config file is present; the daemon
// runs usefully with defaults alone (sim adapter, local paths).
//
// Returns:
//   - *Config: the default configuration, validated
//   - error: an environment override made the configuration invalid
func Default() (*Config, error) {
	return finalise(defaultConfig())
}

// finalise applies env overrides, path expansion and validation.
func finalise(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	cfg.Preview.DownloadDir = expandHome(cfg.Preview.DownloadDir)
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig is the baseline every load starts from. Values here
// match a bench setup: sim adapter, local broker, paths under the
// working directory.
func defaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			Adapter:            "sim",
			MinFrameIntervalMS: 30,
			CorruptFrameLimit:  5,
			Retry: RetryConfig{
				Attempts:     3,
				BackoffMS:    100,
				BackoffCapMS: 2000,
			},
			Watcher: WatcherConfig{
				Enabled:       true,
				IntervalMS:    2000,
				MaxIntervalMS: 60000,
			},
			ErrorClasses: ErrorClassConfig{
				Transient: []int{-110, -10},
				Lost:      []int{-52, -7},
				Fatal:     []int{-1},
			},
			Sim: SimConfig{
				ShotIntervalMS: 5000,
			},
		},
		Preview: PreviewConfig{
			DownloadDir:     "~/Pictures/StudioTether",
			PairTimeoutMS:   2000,
			CacheCapacity:   50,
			DefaultRotation: 0,
			JPEGQuality:     85,
			StripPrefixes:   []string{"capt_"},
		},
		Database: DatabaseConfig{
			Path:        "./data/studiotether.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "studiotether",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: MonitorTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// applyEnvOverrides folds STUDIOTETHER_* variables into cfg. Only the
// handful of fields that make sense per-deployment are overridable;
// everything else belongs in the file.
func applyEnvOverrides(cfg *Config) {
	// Camera
	if v := os.Getenv("STUDIOTETHER_CAMERA_ADAPTER"); v != "" {
		cfg.Camera.Adapter = v
	}

	// Preview
	if v := os.Getenv("STUDIOTETHER_DOWNLOAD_DIR"); v != "" {
		cfg.Preview.DownloadDir = v
	}

	// Database
	if v := os.Getenv("STUDIOTETHER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("STUDIOTETHER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("STUDIOTETHER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STUDIOTETHER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Telemetry
	if v := os.Getenv("STUDIOTETHER_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Logging
	if v := os.Getenv("STUDIOTETHER_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("STUDIOTETHER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandHome replaces a leading "~" with the user's home directory.
// Returns the path unchanged if the home directory cannot be resolved.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks every section and reports all problems at once, so an
// operator fixes a broken file in one round trip.
//
// Returns:
//   - error: every validation failure joined into one message, or nil
func (c *Config) Validate() error {
	var errs []string

	// Camera validation
	if c.Camera.Adapter == "" {
		errs = append(errs, "camera.adapter must be set")
	}
	if c.Camera.MinFrameIntervalMS < 0 {
		errs = append(errs, "camera.min_frame_interval_ms must not be negative")
	}
	if c.Camera.Retry.Attempts < 1 {
		errs = append(errs, "camera.retry.attempts must be at least 1")
	}
	if c.Camera.Retry.BackoffMS < 0 || c.Camera.Retry.BackoffCapMS < c.Camera.Retry.BackoffMS {
		errs = append(errs, "camera.retry backoff must satisfy 0 <= backoff_ms <= backoff_cap_ms")
	}
	if c.Camera.CorruptFrameLimit < 1 {
		errs = append(errs, "camera.corrupt_frame_limit must be at least 1")
	}

	// Preview validation
	if c.Preview.DownloadDir == "" {
		errs = append(errs, "preview.download_dir must be set")
	}
	if c.Preview.PairTimeoutMS < 1 {
		errs = append(errs, "preview.pair_timeout_ms must be positive")
	}
	if c.Preview.CacheCapacity < 1 {
		errs = append(errs, "preview.cache_capacity must be positive")
	}
	switch c.Preview.DefaultRotation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, "preview.default_rotation must be 0, 90, 180 or 270")
	}
	if c.Preview.JPEGQuality < 1 || c.Preview.JPEGQuality > 100 {
		errs = append(errs, "preview.jpeg_quality must be between 1 and 100")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path must be set")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}

	// Monitor validation
	if c.Monitor.Enabled && (c.Monitor.Port < 1 || c.Monitor.Port > 65535) {
		errs = append(errs, "monitor.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetMinFrameInterval returns the minimum inter-capture interval as a Duration.
func (c *Config) GetMinFrameInterval() time.Duration {
	return time.Duration(c.Camera.MinFrameIntervalMS) * time.Millisecond
}

// GetRetryBackoffBase returns the initial retry delay as a Duration.
func (c *Config) GetRetryBackoffBase() time.Duration {
	return time.Duration(c.Camera.Retry.BackoffMS) * time.Millisecond
}

// GetRetryBackoffCap returns the maximum retry delay as a Duration.
func (c *Config) GetRetryBackoffCap() time.Duration {
	return time.Duration(c.Camera.Retry.BackoffCapMS) * time.Millisecond
}

// GetWatcherInterval returns the initial reconnect delay as a Duration.
func (c *Config) GetWatcherInterval() time.Duration {
	return time.Duration(c.Camera.Watcher.IntervalMS) * time.Millisecond
}

// GetWatcherMaxInterval returns the reconnect delay ceiling as a Duration.
func (c *Config) GetWatcherMaxInterval() time.Duration {
	return time.Duration(c.Camera.Watcher.MaxIntervalMS) * time.Millisecond
}

// GetPairTimeout returns the RAW/companion pairing window as a Duration.
func (c *Config) GetPairTimeout() time.Duration {
	return time.Duration(c.Preview.PairTimeoutMS) * time.Millisecond
}

// GetReadTimeout returns the monitor API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Monitor.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the monitor API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Monitor.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the monitor API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Monitor.Timeouts.Idle) * time.Second
}
