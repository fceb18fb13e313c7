package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig drops a YAML document into a temp dir and returns its path.
func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tether.yaml")
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	doc := `
camera:
  adapter: "sim"
  min_frame_interval_ms: 50
preview:
  download_dir: "/tmp/tether-test"
  cache_capacity: 10
database:
  path: "/tmp/tether.sqlite"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "broker.studio.lan"
    port: 1883
    client_id: "bench-rig"
  qos: 1
monitor:
  host: "127.0.0.1"
  port: 8090
`
	cfg, err := Load(writeConfig(t, doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	set := []struct {
		name, got, want string
	}{
		{"camera adapter", cfg.Camera.Adapter, "sim"},
		{"database path", cfg.Database.Path, "/tmp/tether.sqlite"},
		{"broker host", cfg.MQTT.Broker.Host, "broker.studio.lan"},
		{"client id", cfg.MQTT.Broker.ClientID, "bench-rig"},
	}
	for _, tt := range set {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if cfg.Camera.MinFrameIntervalMS != 50 {
		t.Errorf("min frame interval: got %d, want 50", cfg.Camera.MinFrameIntervalMS)
	}
	if cfg.Preview.CacheCapacity != 10 {
		t.Errorf("cache capacity: got %d, want 10", cfg.Preview.CacheCapacity)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Preview.PairTimeoutMS != 2000 {
		t.Errorf("pair timeout default: got %d, want 2000", cfg.Preview.PairTimeoutMS)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load("/nonexistent/tether.yaml"); err == nil {
			t.Fatal("want an error for a missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "camera: [unclosed")); err == nil {
			t.Fatal("want an error for malformed yaml")
		}
	})

	t.Run("fails validation", func(t *testing.T) {
		doc := `
preview:
  download_dir: ""
database:
  path: "/tmp/tether.sqlite"
`
		if _, err := Load(writeConfig(t, doc)); err == nil {
			t.Fatal("want a validation error for an empty download dir")
		}
	})
}

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	if cfg.Camera.Adapter != "sim" {
		t.Errorf("default adapter: got %q, want sim", cfg.Camera.Adapter)
	}
	if cfg.Database.Path == "" {
		t.Error("default database path is empty")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default broker port: got %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Monitor.Port != 8090 {
		t.Errorf("default monitor port: got %d, want 8090", cfg.Monitor.Port)
	}
	if cfg.Preview.CacheCapacity != 50 {
		t.Errorf("default cache capacity: got %d, want 50", cfg.Preview.CacheCapacity)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing adapter",
			mutate:  func(c *Config) { c.Camera.Adapter = "" },
			wantErr: true,
		},
		{
			name:    "negative frame interval",
			mutate:  func(c *Config) { c.Camera.MinFrameIntervalMS = -1 },
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Camera.Retry.Attempts = 0 },
			wantErr: true,
		},
		{
			name:    "backoff cap below base",
			mutate:  func(c *Config) { c.Camera.Retry.BackoffCapMS = c.Camera.Retry.BackoffMS - 1 },
			wantErr: true,
		},
		{
			name:    "zero corrupt frame limit",
			mutate:  func(c *Config) { c.Camera.CorruptFrameLimit = 0 },
			wantErr: true,
		},
		{
			name:    "missing download dir",
			mutate:  func(c *Config) { c.Preview.DownloadDir = "" },
			wantErr: true,
		},
		{
			name:    "zero pair timeout",
			mutate:  func(c *Config) { c.Preview.PairTimeoutMS = 0 },
			wantErr: true,
		},
		{
			name:    "zero cache capacity",
			mutate:  func(c *Config) { c.Preview.CacheCapacity = 0 },
			wantErr: true,
		},
		{
			name:    "invalid rotation",
			mutate:  func(c *Config) { c.Preview.DefaultRotation = 45 },
			wantErr: true,
		},
		{
			name:    "invalid jpeg quality",
			mutate:  func(c *Config) { c.Preview.JPEGQuality = 101 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid monitor port",
			mutate:  func(c *Config) { c.Monitor.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "monitor disabled skips port check",
			mutate:  func(c *Config) { c.Monitor.Enabled = false; c.Monitor.Port = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("want a validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Run("monitor timeouts", func(t *testing.T) {
		cfg := &Config{
			Monitor: MonitorConfig{
				Timeouts: MonitorTimeoutConfig{
					Read:  12,
					Write: 23,
					Idle:  74,
				},
			},
		}

		if got := cfg.GetReadTimeout().Seconds(); got != 12 {
			t.Errorf("read timeout: got %vs, want 12s", got)
		}
		if got := cfg.GetWriteTimeout().Seconds(); got != 23 {
			t.Errorf("write timeout: got %vs, want 23s", got)
		}
		if got := cfg.GetIdleTimeout().Seconds(); got != 74 {
			t.Errorf("idle timeout: got %vs, want 74s", got)
		}
	})

	t.Run("millisecond fields", func(t *testing.T) {
		cfg := defaultConfig()

		ms := []struct {
			name string
			got  int64
			want int64
		}{
			{"min frame interval", cfg.GetMinFrameInterval().Milliseconds(), 30},
			{"pair timeout", cfg.GetPairTimeout().Milliseconds(), 2000},
			{"retry backoff base", cfg.GetRetryBackoffBase().Milliseconds(), 100},
			{"retry backoff cap", cfg.GetRetryBackoffCap().Milliseconds(), 2000},
			{"watcher interval", cfg.GetWatcherInterval().Milliseconds(), 2000},
		}
		for _, tt := range ms {
			if tt.got != tt.want {
				t.Errorf("%s: got %dms, want %dms", tt.name, tt.got, tt.want)
			}
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STUDIOTETHER_CAMERA_ADAPTER", "vendor-x")
	t.Setenv("STUDIOTETHER_DOWNLOAD_DIR", "/mnt/ingest")
	t.Setenv("STUDIOTETHER_DATABASE_PATH", "/data/tether.sqlite")
	t.Setenv("STUDIOTETHER_MQTT_HOST", "broker.studio.lan")
	t.Setenv("STUDIOTETHER_MQTT_USERNAME", "tether-ops")
	t.Setenv("STUDIOTETHER_MQTT_PASSWORD", "swordfish")
	t.Setenv("STUDIOTETHER_TELEMETRY_TOKEN", "influx-secret")
	t.Setenv("STUDIOTETHER_LOG_FILE", "/var/log/tetherd.log")
	t.Setenv("STUDIOTETHER_LOG_LEVEL", "debug")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	overrides := []struct {
		name, got, want string
	}{
		{"camera adapter", cfg.Camera.Adapter, "vendor-x"},
		{"download dir", cfg.Preview.DownloadDir, "/mnt/ingest"},
		{"database path", cfg.Database.Path, "/data/tether.sqlite"},
		{"broker host", cfg.MQTT.Broker.Host, "broker.studio.lan"},
		{"mqtt username", cfg.MQTT.Auth.Username, "tether-ops"},
		{"mqtt password", cfg.MQTT.Auth.Password, "swordfish"},
		{"telemetry token", cfg.Telemetry.Token, "influx-secret"},
		{"log file", cfg.Logging.File, "/var/log/tetherd.log"},
		{"log level", cfg.Logging.Level, "debug"},
	}
	for _, tt := range overrides {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "tilde with path",
			input: "~/Pictures/StudioTether",
			want:  filepath.Join(home, "Pictures/StudioTether"),
		},
		{
			name:  "bare tilde",
			input: "~",
			want:  home,
		},
		{
			name:  "absolute path unchanged",
			input: "/var/lib/tether",
			want:  "/var/lib/tether",
		},
		{
			name:  "empty unchanged",
			input: "",
			want:  "",
		},
		{
			name:  "tilde user unchanged",
			input: "~other/dir",
			want:  "~other/dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandHome(tt.input); got != tt.want {
				t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
