package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
	"github.com/mkarlberg/studiotether/internal/infrastructure/telemetry"
)

// devConfig points at the local dev InfluxDB with a short flush
// interval so tests see write errors quickly.
func devConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "studiotether-dev-token",
		Org:           "studio",
		Bucket:        "tether",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip returns a live client, or skips when no InfluxDB is
// listening on the dev port.
func connectOrSkip(t *testing.T, cfg config.TelemetryConfig) *telemetry.Client {
	t.Helper()

	client, err := telemetry.Connect(cfg)
	if errors.Is(err, telemetry.ErrConnectionFailed) {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// captureErrors registers an error callback and returns a getter for
// the first async failure seen.
func captureErrors(client *telemetry.Client) func() error {
	var (
		mu    sync.Mutex
		first error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		if first == nil {
			first = err
		}
		mu.Unlock()
	})
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return first
	}
}

// A nil *Client is the normal state when telemetry is disabled; every
// method must be inert.
func TestNilClientIsInert(t *testing.T) {
	var client *telemetry.Client

	if client.IsConnected() {
		t.Error("IsConnected() = true for nil client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, telemetry.ErrNotConnected) {
		t.Errorf("HealthCheck() on nil client = %v, want ErrNotConnected", err)
	}

	// None of these may panic.
	client.SetOnError(func(error) {})
	client.Flush()
	client.WriteFrameMetric("sim", 33.4, 1024)
	client.WriteIngestMetric("raw", true, 120.5)
	client.WriteSessionState("connected", 2)
	client.WritePoint("custom", nil, map[string]any{"v": 1})
	client.WritePointWithTime("custom", nil, map[string]any{"v": 1}, time.Now())
}

func TestConnectDisabled(t *testing.T) {
	cfg := devConfig()
	cfg.Enabled = false

	if _, err := telemetry.Connect(cfg); !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect with telemetry off = %v, want ErrDisabled", err)
	}
}

func TestConnectRefused(t *testing.T) {
	cfg := devConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := telemetry.Connect(cfg)
	if !errors.Is(err, telemetry.ErrConnectionFailed) {
		t.Errorf("Connect against dead port = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndProbe(t *testing.T) {
	client := connectOrSkip(t, devConfig())

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	t.Run("cancelled context", func(t *testing.T) {
		gone, cancel := context.WithCancel(context.Background())
		cancel()
		if err := client.HealthCheck(gone); err == nil {
			t.Error("HealthCheck ignored a cancelled context")
		}
	})
}

// Zero batch settings fall back to defaults rather than breaking the
// uint conversion in the library options.
func TestConnectZeroBatchSettings(t *testing.T) {
	cfg := devConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client := connectOrSkip(t, cfg)
	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

// One pass over every write helper; the error callback stays silent
// when the server accepts the batch.
func TestWritesReachServer(t *testing.T) {
	client := connectOrSkip(t, devConfig())
	asyncErr := captureErrors(client)

	client.WriteFrameMetric("sim", 33.4, 48211)
	client.WriteIngestMetric("raw", true, 182.0)
	client.WriteIngestMetric("standalone", false, 95.5)
	client.WriteSessionState("connected", 2)
	client.WritePoint("cache",
		map[string]string{"reason": "eviction"},
		map[string]any{"size": 50, "evicted": 1})
	client.WritePointWithTime("cache",
		map[string]string{"reason": "reconcile"},
		map[string]any{"loaded": 12},
		time.Now().Add(-time.Hour))

	client.Flush()
	time.Sleep(150 * time.Millisecond)

	if err := asyncErr(); err != nil {
		t.Errorf("async write error: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	client := connectOrSkip(t, devConfig())

	client.WriteFrameMetric("sim", 30.0, 1024)

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// Writes and flushes after Close are dropped, not panics.
	client.WriteSessionState("lost", 4)
	client.Flush()
}
