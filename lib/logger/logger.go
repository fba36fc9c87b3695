// Package logger provides structured logging with subsystem-specific levels
// and OpenTelemetry trace context integration.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Subsystem names for per-subsystem logging configuration.
const (
	SubsystemResolver = "RESOLVER"
	SubsystemExtents  = "EXTENTS"
	SubsystemTracker  = "TRACKER"
	SubsystemProcscan = "PROCSCAN"
	SubsystemCLI      = "CLI"
)

var subsystems = []string{
	SubsystemResolver, SubsystemExtents, SubsystemTracker,
	SubsystemProcscan, SubsystemCLI,
}

// Config holds logging configuration.
type Config struct {
	// Default applies to any subsystem without an override.
	Default slog.Level
	// Overrides maps subsystem names to their specific log levels.
	Overrides map[string]slog.Level
	// AddSource adds source file information to log entries.
	AddSource bool
}

// NewConfig reads LOG_LEVEL for the default level and LOG_LEVEL_<SUBSYSTEM>
// for per-subsystem overrides.
func NewConfig() Config {
	cfg := Config{Default: levelFromString(os.Getenv("LOG_LEVEL"))}
	for _, sub := range subsystems {
		v := os.Getenv("LOG_LEVEL_" + sub)
		if v == "" {
			continue
		}
		if cfg.Overrides == nil {
			cfg.Overrides = make(map[string]slog.Level)
		}
		cfg.Overrides[sub] = levelFromString(v)
	}
	return cfg
}

// levelFromString parses a level name, defaulting to info on anything it
// does not recognize.
func levelFromString(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// LevelFor returns the log level for the given subsystem.
func (c Config) LevelFor(subsystem string) slog.Level {
	if l, ok := c.Overrides[subsystem]; ok {
		return l
	}
	return c.Default
}

// NewSubsystemLogger creates a logger for a specific subsystem with its
// configured level. Log records go to stderr; stdout belongs to the progress
// output of the CLIs. If otelHandler is provided, records are also bridged
// to OTel.
func NewSubsystemLogger(subsystem string, cfg Config, otelHandler slog.Handler) *slog.Logger {
	level := cfg.LevelFor(subsystem)
	sinks := []slog.Handler{
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		}),
	}
	if otelHandler != nil {
		sinks = append(sinks, otelHandler)
	}
	return slog.New(&subsystemHandler{
		subsystem: subsystem,
		min:       level,
		sinks:     sinks,
	})
}

// subsystemHandler stamps every record with its subsystem name and any
// trace context from the call's context, then hands the record to each sink
// that accepts the record's level.
type subsystemHandler struct {
	subsystem string
	min       slog.Level
	sinks     []slog.Handler
}

func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *subsystemHandler) Handle(ctx context.Context, rec slog.Record) error {
	rec.AddAttrs(slog.String("subsystem", h.subsystem))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		rec.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	// Every sink gets the record; the first failure is reported after the
	// rest have been tried.
	var firstErr error
	for _, sink := range h.sinks {
		if !sink.Enabled(ctx, rec.Level) {
			continue
		}
		if err := sink.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.apply(func(sink slog.Handler) slog.Handler { return sink.WithAttrs(attrs) })
}

func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return h.apply(func(sink slog.Handler) slog.Handler { return sink.WithGroup(name) })
}

func (h *subsystemHandler) apply(f func(slog.Handler) slog.Handler) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, sink := range h.sinks {
		sinks[i] = f(sink)
	}
	return &subsystemHandler{subsystem: h.subsystem, min: h.min, sinks: sinks}
}
