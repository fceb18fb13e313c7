// Package monitor implements the local HTTP API and WebSocket server
// for StudioTether.
//
// This package provides:
//   - REST endpoints for session status, preview browsing, capture
//     history, and runtime settings
//   - WebSocket hub for real-time connection, frame, and cache events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for non-loopback deployments
//
// # Architecture
//
// The monitor sits beside the capture pipeline and reads from it; it
// never drives the device directly. Status comes from the session and
// scheduler counters, preview bytes come from the in-memory cache, and
// capture history comes from the catalog. The two runtime settings it
// exposes (default rotation, frame interval) are forwarded to the
// ingester and scheduler, which apply them atomically.
//
// Real-time events reach WebSocket clients through the Hub. The daemon
// owns the broadcast side: it injects a shared hub and publishes to the
// Channel* channels as the session, scheduler, and cache report changes.
// Clients subscribe per channel after connecting.
//
// # Security
//
// The server binds to loopback by default and carries no
// authentication; it is a single-operator control surface on the same
// machine as the camera. Anything reachable from other hosts should
// front it with TLS (supported) and network controls.
//
// # Graceful Degradation
//
// Only the logger and preview cache are mandatory. Endpoints backed by
// an absent dependency (catalog, scheduler, ingester) answer 503 rather
// than failing server construction, so a partially wired daemon still
// exposes health and previews.
package monitor
