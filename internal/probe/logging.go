// Package probe provides observers that turn guard evaluations into
// structured log records.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/project-kessel/leakguard/internal/clock"
	"github.com/project-kessel/leakguard/internal/guard"
)

// EventGuardEvaluation is the `event` attribute of every evaluation record
const EventGuardEvaluation = "guard_evaluation"

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	logger *slog.Logger
	clock  clock.Clock
}

// LoggingObserverConfig configures the logging observer
type LoggingObserverConfig struct {
	// Logger is the base logger to use. If nil, uses slog.Default()
	Logger *slog.Logger

	// Clock times evaluations (default: system clock)
	Clock clock.Clock
}

// NewLoggingObserver creates an observer that logs every guard evaluation
func NewLoggingObserver(logger *slog.Logger) guard.Observer {
	return NewLoggingObserverWithConfig(LoggingObserverConfig{Logger: logger})
}

// NewLoggingObserverWithConfig creates a logging observer with custom configuration
func NewLoggingObserverWithConfig(cfg LoggingObserverConfig) guard.Observer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &loggingObserver{logger: logger, clock: clk}
}

// EvaluationStarted implements guard.Observer
func (o *loggingObserver) EvaluationStarted(ctx context.Context, surface guard.Surface) (context.Context, guard.EvaluationProbe) {
	probeLogger := o.logger.With(
		slog.String("event", EventGuardEvaluation),
		slog.String("evaluation_id", uuid.NewString()),
		slog.String("surface", string(surface)),
	)

	probeLogger.LogAttrs(ctx, slog.LevelDebug, "Starting guard evaluation")

	return ctx, &loggingEvaluationProbe{
		ctx:     ctx,
		logger:  probeLogger,
		clock:   o.clock,
		started: o.clock.Now(),
	}
}

// loggingEvaluationProbe logs the events of a single evaluation
type loggingEvaluationProbe struct {
	ctx     context.Context
	logger  *slog.Logger
	clock   clock.Clock
	started time.Time
	outcome string
}

func (p *loggingEvaluationProbe) IdentityResolved(ac guard.AuthContext) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Identity resolved",
		slog.Bool("authenticated", ac.Authenticated),
		slog.Bool("privileged", ac.Privileged),
	)
}

func (p *loggingEvaluationProbe) IdentityResolutionFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"Identity resolution failed, treating caller as anonymous",
		slog.String("error", err.Error()),
	)
}

func (p *loggingEvaluationProbe) Allowed() {
	p.outcome = "allowed"
}

func (p *loggingEvaluationProbe) Redacted() {
	p.outcome = "redacted"
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Value redacted")
}

func (p *loggingEvaluationProbe) Denied(d *guard.Denial) {
	p.outcome = "denied"
	attrs := []slog.Attr{}
	if d != nil {
		attrs = append(attrs,
			slog.String("code", d.Code),
			slog.Int("status", d.Status),
		)
	}
	p.logger.LogAttrs(p.ctx, slog.LevelInfo, "Request denied", attrs...)
}

func (p *loggingEvaluationProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Guard evaluation completed",
		slog.String("outcome", p.outcome),
		slog.Duration("duration", p.clock.Now().Sub(p.started)),
	)
}
