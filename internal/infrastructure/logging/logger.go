package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
)

// Logger is the application-wide structured logger. It embeds
// *slog.Logger, so call sites use the familiar Info/Warn/Error methods
// with alternating key/value attributes, and it shares slog's guarantee
// that a single instance may be used from any number of goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml.
//
// Format selects the slog handler: "text" for human-readable bench
// output, anything else falls back to JSON for machine consumption.
// Output selects the destination stream, "stderr" or the default
// "stdout". Every record carries service and version attributes so
// aggregated logs from several rigs stay attributable.
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	sink := sinkFor(cfg.Output)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(sink, opts)
	} else {
		handler = slog.NewJSONHandler(sink, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "benchrig"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// sinkFor maps the configured output name onto a stream. Unknown names
// fall back to stdout rather than failing startup.
func sinkFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config string onto a slog.Level. Unrecognised
// values, including the empty string, resolve to info so a typo in
// config.yaml never silences the log.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger that stamps the given key/value pairs on
// every record. Components take a child at construction time so their
// output can be filtered by a single attribute:
//
//	bridgeLog := logger.With("component", "bridge")
//	bridgeLog.Info("started") // includes component=bridge
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level on stdout for use during
// early startup, before config.yaml has been read. Callers should
// replace it with New once configuration loads.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
