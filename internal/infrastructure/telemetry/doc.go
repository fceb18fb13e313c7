// Package telemetry provides InfluxDB connectivity for the StudioTether daemon.
//
// It wraps the official influxdb-client-go v2 library with the house
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Live-view frame rate and payload sizes
//   - Capture ingest latency and pairing outcomes
//   - Camera session state transitions
//
// # Usage
//
//	cfg := config.TelemetryConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "studio",
//	    Bucket:  "tether",
//	}
//
//	client, err := telemetry.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteFrameMetric("sim", 33.4, 48211)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines,
// and safe to call on a nil *Client (telemetry disabled). The underlying
// write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for per-frame telemetry.
package telemetry
