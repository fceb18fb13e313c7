// Package camera implements the tethered camera core for StudioTether.
//
// This package owns the exclusive device session, the capture loop that
// interleaves live-view frames with capture-file downloads, and the
// recovery machinery that brings a lost camera back.
//
// # Architecture
//
// The core sits between a vendor transport adapter and the consumers of
// its output:
//
//	┌─────────────────┐             ┌─────────────────┐
//	│     Camera      │  Transport  │  Camera Core    │  callbacks
//	│    (adapter)    │◄───────────►│   (this pkg)    │──────────► preview / catalog / MQTT
//	└─────────────────┘             └─────────────────┘
//
// # Key Responsibilities
//
//   - Hold the single device session and serialise all adapter calls
//   - Classify device errors (transient / transport lost / fatal) and
//     retry transient ones with exponential backoff
//   - Pace live-view capture at a runtime-adjustable minimum interval
//   - Poll device events and download finished capture files
//   - Detect corrupt preview streams and force a reconnect
//   - Reconnect automatically after a transport loss
//   - Publish health status over MQTT
//
// # Session Lifecycle
//
// A session moves through disconnected, connecting, connected, degraded,
// lost, and releasing. Device operations are possible only while
// connected or degraded. A transport loss releases the device
// best-effort and notifies status listeners exactly once; the watcher
// then reconnects with growing backoff.
//
// # Locking Model
//
// The device lock spans exactly one adapter call. Frame decode, pairing
// and disk writes all happen outside it, on copies taken while the lock
// was held, so slow downstream work can never starve the capture loop.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines.
package camera
