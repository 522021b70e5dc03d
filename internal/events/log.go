package events

import (
	"context"
	"log/slog"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// LogEmitter writes events to the structured log. Used when Redis is not
// configured and as a safe default in tests.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a log-backed emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.With("component", "events")}
}

func (e *LogEmitter) PriceChange(ctx context.Context, ev *domain.PriceChangeEvent) error {
	e.logger.InfoContext(ctx, "price change",
		"entity", ev.EntityKey,
		"provider", ev.Provider,
		"old_value", ev.OldValue,
		"new_value", ev.NewValue,
		"percent_change", ev.ChangePct)
	return nil
}

func (e *LogEmitter) SystemAlert(ctx context.Context, ev *domain.SystemAlertEvent) error {
	e.logger.WarnContext(ctx, "system alert",
		"severity", ev.Severity,
		"component", ev.Component,
		"message", ev.Message,
		"job_id", ev.JobID)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
