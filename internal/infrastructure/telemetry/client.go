package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// Client feeds capture and session metrics into InfluxDB v2.
//
// Telemetry is optional: when disabled the daemon carries a nil *Client,
// and every method is a safe no-op on a nil receiver. Writes go through
// the library's non-blocking batch API; failures surface on the error
// callback, never to the writer.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.TelemetryConfig

	up      atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect builds the client, proves the server answers a ping, and
// starts draining async write errors.
func Connect(cfg config.TelemetryConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	cl := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	if err := ping(context.Background(), cl, connectTimeout); err != nil {
		cl.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   cl,
		writeAPI: cl.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	c.up.Store(true)

	go c.drainWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// batchOptions translates config into library options, falling back to
// sane batching when the config leaves them zero.
func batchOptions(cfg config.TelemetryConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}

	// SetFlushInterval takes milliseconds; the config speaks seconds.
	//#nosec G115 -- both values forced positive above
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000)
}

// ping runs one bounded health probe against the server.
func ping(ctx context.Context, cl influxdb2.Client, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ok, err := cl.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("server reports unhealthy")
	}
	return nil
}

// drainWriteErrors forwards async write failures to the registered
// callback. The channel closes when the client does.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		if f := c.onError.Load(); f != nil {
			(*f)(err)
		}
	}
}

// SetOnError registers a callback for async write failures. Writes are
// batched, so the failing point is long gone by the time this fires;
// the callback is for logging, not retry.
func (c *Client) SetOnError(callback func(error)) {
	if c == nil {
		return
	}
	c.onError.Store(&callback)
}

// IsConnected reports the last known connection state. HealthCheck
// performs a live probe.
func (c *Client) IsConnected() bool {
	return c != nil && c.up.Load()
}

// HealthCheck verifies the server still answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, pingTimeout); err != nil {
		return fmt.Errorf("telemetry health check: %w", err)
	}
	return nil
}

// Flush pushes buffered points out now instead of at the next batch
// deadline. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending points and tears the connection down.
// Idempotent; the library's Close never fails, so this returns nil.
func (c *Client) Close() error {
	if c == nil || !c.up.Swap(false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
