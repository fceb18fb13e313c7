// Package logging builds the daemon's slog logger.
//
// Every record carries service and version fields so studio log
// aggregation can tell tetherd instances apart. Output is JSON by default
// for shippers, text when a human is watching, and goes to stdout, stderr,
// or a size-rotated file depending on the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  file: ""           # when set, rotated file output wins
//
// Components take child loggers via With, so a record's origin survives
// the trip through the pipeline:
//
//	logger := logging.New(cfg.Logging, version)
//	camLog := logger.With("component", "camera")
//	camLog.Info("session opened", "adapter", cfg.Camera.Adapter)
package logging
