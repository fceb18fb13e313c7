// Package preview turns downloaded capture files into an in-memory,
// navigable ring of display-ready JPEG thumbnails.
//
// # Architecture
//
//	                 ┌──────────────────────────────────────────┐
//	                 │                 Ingester                  │
//	 DownloadEvent ──▶  normalise ─▶ spool to disk ─▶ pair/route │
//	                 │                    │                      │
//	                 │       ┌────────────┴───────────┐          │
//	                 │       ▼                        ▼          │
//	                 │  companion decode        RAW standalone   │
//	                 │  (imaging + EXIF)   (decoders ▶ embedded) │
//	                 │       │                        │          │
//	                 │       └───────────┬────────────┘          │
//	                 └───────────────────┼───────────────────────┘
//	                                     ▼
//	                 ┌──────────────────────────────────────────┐
//	                 │          Cache (bounded FIFO)             │
//	                 │  insertion order · cursor · eviction      │
//	                 └──────────────────────────────────────────┘
//
// # Pairing
//
// Cameras shooting RAW+JPEG deliver two files per shutter press that
// share a logical ID (the base name without extension). A RAW arriving
// first waits in a pending set up to the pair timeout; its companion
// claims it and provides the thumbnail. A companion arriving first is
// processed immediately and upgraded to paired when the RAW follows. A
// background sweep expires overdue RAWs into standalone processing, so
// a lost companion delays a preview but never loses one.
//
// # Thumbnail resolution
//
// Sources are tried in order of fidelity and cost: the companion JPEG,
// then any registered RawDecoder capability, then a scan of the RAW
// container for its largest embedded JPEG. A capture failing all three
// is reported as a decode failure and produces no cache entry; the
// pipeline carries on with the next file.
//
// Rotation is baked into the thumbnail bytes exactly once at ingest,
// from EXIF orientation when present, from the configured default
// otherwise. Consumers never reorient.
//
// # Cache semantics
//
// The cache is a bounded FIFO keyed by logical ID with a navigation
// cursor. Re-ingesting an ID replaces the entry in place without
// disturbing navigation order; when full, the oldest entry is evicted.
// Next and Previous stop at the ends rather than wrapping. All writes
// funnel through the Ingester; readers get snapshots and may hold
// returned thumbnail bytes indefinitely.
package preview
