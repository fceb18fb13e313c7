package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
)

// Logger is slog with StudioTether conventions baked in: service and
// version fields on every record, level and format from config, and
// size-rotated files when one is configured. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the daemon logger from the logging section of config.yaml.
// version is stamped onto every record, which keeps mixed-version studio
// logs attributable.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg, newWriter(cfg))
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "studiotether"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newWriter picks the destination. A configured file wins over
// stdout/stderr and rotates by size via lumberjack.
func newWriter(cfg config.LoggingConfig) io.Writer {
	if cfg.File != "" {
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	if strings.EqualFold(cfg.Output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// newHandler maps the format string onto a slog handler. JSON unless text
// is asked for explicitly; log shippers expect JSON lines.
func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a config level string onto slog's scale, defaulting to
// info for anything unrecognised.
func parseLevel(level string) slog.Level {
	if l, ok := levelNames[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger carrying extra default attributes.
//
//	camLog := logger.With("component", "camera")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the pre-config logger for early startup: JSON to stdout at
// info level, version "dev". Replaced as soon as config loads.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
