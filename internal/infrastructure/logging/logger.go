package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gdogen/internal/infrastructure/config"
)

// Logger is the structured logger shared by the command line tool, the
// builder and the preview server. Every entry carries the service name and
// the gdogen version.
//
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New creates a Logger writing to the stream named by cfg.Output.
// Only an explicit "stdout" selects standard output: generated source may be
// printed there, so logs default to stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	w := io.Writer(os.Stderr)
	if strings.EqualFold(cfg.Output, "stdout") {
		w = os.Stdout
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
// Format "text" selects logfmt-style lines; anything else is JSON.
// At debug level each entry also records its source location.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", "gdogen", "version", version)}
}

// parseLevel maps a configured level name to a slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child Logger that adds args to every entry, for example
//
//	log.With("component", "watch").Info("rebuilding", "file", path)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a text logger on stderr at info level, for use before the
// configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text"}, "dev")
}
