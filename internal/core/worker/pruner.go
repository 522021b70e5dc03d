// Package worker holds background maintenance loops that run beside the
// orchestrator.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/config"
)

// HistoryStore deletes price history rows older than a cutoff.
type HistoryStore interface {
	PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore deletes alerts older than a cutoff.
type AlertStore interface {
	PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes old price history and alerts based on retention policy.
type Pruner struct {
	cfg     config.RetentionConfig
	history HistoryStore
	alerts  AlertStore
	log     *slog.Logger
}

// NewPruner creates a retention pruner.
func NewPruner(cfg config.RetentionConfig, history HistoryStore, alerts AlertStore, logger *slog.Logger) *Pruner {
	return &Pruner{
		cfg:     cfg,
		history: history,
		alerts:  alerts,
		log:     logger.With("component", "pruner"),
	}
}

// Start runs the pruner loop until the context is canceled.
func (p *Pruner) Start(ctx context.Context) {
	retention := max(p.cfg.History.Std(), p.cfg.Alerts.Std())
	if retention <= 0 {
		return // retention disabled
	}

	interval := min(retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	now := time.Now().UTC()

	if p.cfg.History.Std() > 0 {
		n, err := p.history.PruneHistoryBefore(ctx, now.Add(-p.cfg.History.Std()))
		if err != nil {
			p.log.Error("failed to prune price history", "error", err)
		} else if n > 0 {
			p.log.Info("pruned price history", "rows", n)
		}
	}

	if p.cfg.Alerts.Std() > 0 {
		n, err := p.alerts.PruneAlertsBefore(ctx, now.Add(-p.cfg.Alerts.Std()))
		if err != nil {
			p.log.Error("failed to prune alerts", "error", err)
		} else if n > 0 {
			p.log.Info("pruned alerts", "rows", n)
		}
	}
}
