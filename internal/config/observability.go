package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/probe"
)

// levelDisabled is above every real level
const levelDisabled = slog.Level(1000)

// NewObserver creates a guard observer using the provided logger
func NewObserver(cfg *ObservabilityConfig, logger *slog.Logger) (guard.Observer, error) {
	if cfg == nil {
		return guard.NoOpObserver{}, nil
	}

	switch cfg.Type {
	case "logging":
		return probe.NewLoggingObserverWithConfig(probe.LoggingObserverConfig{
			Logger: logger,
		}), nil
	case "noop", "":
		return guard.NoOpObserver{}, nil
	case "composite":
		return newCompositeObserver(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown observability type: %s (supported: logging, noop, composite)", cfg.Type)
	}
}

func newCompositeObserver(cfg *ObservabilityConfig, logger *slog.Logger) (guard.Observer, error) {
	if len(cfg.Observers) == 0 {
		return nil, fmt.Errorf("composite observer requires at least one sub-observer")
	}

	observers := make([]guard.Observer, 0, len(cfg.Observers))
	for i := range cfg.Observers {
		observer, err := NewObserver(&cfg.Observers[i], logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer %d: %w", i, err)
		}
		observers = append(observers, observer)
	}

	return guard.NewCompositeObserver(observers...), nil
}

// NewLogger creates a structured logger writing to stdout.
// Returns slog.Default() if cfg is nil.
func NewLogger(cfg *ObservabilityConfig) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a structured logger writing to w
func NewLoggerTo(w io.Writer, cfg *ObservabilityConfig) *slog.Logger {
	if cfg == nil {
		return slog.Default()
	}
	return slog.New(newEventFilteringHandler(w, cfg))
}

func newEventFilteringHandler(w io.Writer, cfg *ObservabilityConfig) *eventFilteringHandler {
	defaultLevel := parseLogLevel(cfg.LogLevel)

	eventLevels := make(map[string]slog.Level)
	if ev := cfg.Evaluation; ev != nil {
		if ev.Enabled != nil && !*ev.Enabled {
			eventLevels[probe.EventGuardEvaluation] = levelDisabled
		} else if ev.LogLevel != "" {
			eventLevels[probe.EventGuardEvaluation] = parseLogLevel(ev.LogLevel)
		}
	}

	// The base handler must pass the most verbose level any event asks for;
	// the filtering handler applies the per-event threshold.
	minLevel := defaultLevel
	for _, l := range eventLevels {
		minLevel = min(minLevel, l)
	}

	return &eventFilteringHandler{
		next:         createHandler(w, cfg.LogFormat, minLevel),
		eventLevels:  eventLevels,
		defaultLevel: defaultLevel,
	}
}

// eventFilteringHandler applies a per-event level to records carrying an
// `event` attribute, either on the record or bound with Logger.With.
type eventFilteringHandler struct {
	next         slog.Handler
	eventLevels  map[string]slog.Level
	defaultLevel slog.Level
	event        string
}

func (h *eventFilteringHandler) threshold(event string) slog.Level {
	if l, ok := h.eventLevels[event]; ok && event != "" {
		return l
	}
	return h.defaultLevel
}

func (h *eventFilteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.event != "" {
		return level >= h.threshold(h.event)
	}
	// The event may still arrive as a record attribute.
	minLevel := h.defaultLevel
	for _, l := range h.eventLevels {
		minLevel = min(minLevel, l)
	}
	return level >= minLevel
}

func (h *eventFilteringHandler) Handle(ctx context.Context, record slog.Record) error {
	event := h.event
	if event == "" {
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == "event" {
				event = attr.Value.String()
				return false
			}
			return true
		})
	}

	if record.Level < h.threshold(event) {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *eventFilteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "event" {
			clone.event = a.Value.String()
		}
	}
	return &clone
}

func (h *eventFilteringHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// createHandler creates a slog handler based on format and level
func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// parseLogLevel parses a log level string, defaulting to info
func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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
