package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// emit queues one point on the batch writer. Dropped silently when the
// client is nil or closed, which is what per-frame instrumentation
// wants.
func (c *Client) emit(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

// WriteFrameMetric records one live-view frame: which adapter produced
// it, the gap since the previous frame and the encoded size.
func (c *Client) WriteFrameMetric(adapter string, intervalMS float64, bytes int) {
	c.emit("frame",
		map[string]string{"adapter": adapter},
		map[string]any{"interval_ms": intervalMS, "bytes": bytes},
		time.Now())
}

// WriteIngestMetric records a completed capture ingest: the source the
// preview was decoded from, whether the capture arrived as a RAW+JPEG
// pair, and how long the thumbnail decode took.
func (c *Client) WriteIngestMetric(sourceKind string, paired bool, decodeMS float64) {
	c.emit("ingest",
		map[string]string{"source_kind": sourceKind},
		map[string]any{"decode_ms": decodeMS, "paired": paired},
		time.Now())
}

// WriteSessionState records a session transition. The numeric code lets
// dashboards graph state over time (0=disconnected through 5=releasing).
func (c *Client) WriteSessionState(state string, code int) {
	c.emit("session",
		map[string]string{"state": state},
		map[string]any{"code": code},
		time.Now())
}

// WritePoint records a custom measurement stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.emit(measurement, tags, fields, time.Now())
}

// WritePointWithTime records a custom measurement with an explicit
// timestamp, for data that arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	c.emit(measurement, tags, fields, at)
}
