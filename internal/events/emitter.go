// Package events is the push-side surface: price changes and system alerts
// flow out here while all other state stays pull-based via job status.
package events

import (
	"context"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// Emitter publishes domain events to downstream consumers.
type Emitter interface {
	// PriceChange announces a committed price movement.
	PriceChange(ctx context.Context, ev *domain.PriceChangeEvent) error

	// SystemAlert announces a failure or anomaly signal.
	SystemAlert(ctx context.Context, ev *domain.SystemAlertEvent) error

	// Close releases the underlying connection.
	Close() error
}
