// Package catalog defines the durable store contract the reconciliation
// core writes against. Implementations live in catalog/postgres and
// catalog/memory; all write operations are idempotent upserts or keyed
// append-only inserts so concurrent runs converge instead of corrupting
// state.
package catalog

import (
	"context"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// ProviderLink ties a catalog entity to a provider-local identifier.
type ProviderLink struct {
	Provider string
	LocalID  string
}

// EntityWrite is one idempotent entity upsert, keyed by the canonical key.
type EntityWrite struct {
	Key           string
	CanonicalName string
	Brand         string
	Barcode       string
	UnitType      string
	UnitSize      float64
	Links         []ProviderLink
}

// WriteSet is the translated output of one reconciled batch. All writes
// apply in a single transaction or not at all; re-applying a committed
// WriteSet produces no additional side effects.
type WriteSet struct {
	Entities     []*EntityWrite
	Observations []*domain.Observation
}

// Empty reports whether the set contains no writes.
func (w *WriteSet) Empty() bool {
	return len(w.Entities) == 0 && len(w.Observations) == 0
}

// EntityRepository reads canonical entities for identity resolution.
type EntityRepository interface {
	// FindByKey returns the entity with the given canonical key, or nil.
	FindByKey(ctx context.Context, key string) (*domain.CatalogEntity, error)

	// FindByBarcode returns the entity carrying the barcode, or nil.
	FindByBarcode(ctx context.Context, barcode string) (*domain.CatalogEntity, error)

	// CandidatesByBrand returns entities sharing a brand, for similarity
	// comparison during dedup.
	CandidatesByBrand(ctx context.Context, brand string, limit int) ([]*domain.CatalogEntity, error)
}

// ObservationRepository reads price observations and trailing history.
type ObservationRepository interface {
	// Latest returns the most recent observation for an entity/provider
	// pair, or nil when none exists.
	Latest(ctx context.Context, entityID int64, provider string) (*domain.HistoryPoint, error)

	// TrailingHistory returns up to limit history points, newest first.
	TrailingHistory(ctx context.Context, entityID int64, provider string, limit int) ([]domain.HistoryPoint, error)
}

// ScheduleRepository stores per-provider schedules.
type ScheduleRepository interface {
	GetAll(ctx context.Context) ([]*domain.ProviderSchedule, error)
	Get(ctx context.Context, provider string) (*domain.ProviderSchedule, error)
	Upsert(ctx context.Context, s *domain.ProviderSchedule) error

	// MarkRun records a finished run and the computed next fire time.
	MarkRun(ctx context.Context, provider string, lastRun, nextRun time.Time) error
}

// JobRepository retains jobs for audit.
type JobRepository interface {
	// Save upserts a job snapshot by ID.
	Save(ctx context.Context, job *domain.Job) error

	// List returns jobs newest first, optionally filtered by provider.
	List(ctx context.Context, provider string, limit int) ([]*domain.Job, error)
}

// AlertRepository retains raised alerts.
type AlertRepository interface {
	Add(ctx context.Context, alert *domain.Alert) error
	List(ctx context.Context, limit int) ([]*domain.Alert, error)
}

// BatchCommitter applies a WriteSet atomically.
type BatchCommitter interface {
	CommitBatch(ctx context.Context, ws *WriteSet) error
}
