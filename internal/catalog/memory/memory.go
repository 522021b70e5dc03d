// Package memory provides an in-memory catalog store for tests and
// database-less runs. Semantics match the postgres implementation,
// including idempotent upserts and keyed history inserts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/core/domain"
)

type historyKey struct {
	entityID   int64
	provider   string
	capturedAt int64 // unix seconds
}

type latestKey struct {
	entityID int64
	provider string
}

// Store holds all catalog state behind one mutex.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	entities  map[string]*domain.CatalogEntity // by canonical key
	links     map[int64][]catalog.ProviderLink
	latest    map[latestKey]*domain.Observation
	history   map[historyKey]float64
	schedules map[string]*domain.ProviderSchedule
	jobs      map[string]*domain.Job
	jobOrder  []string
	alerts    []*domain.Alert
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nextID:    1,
		entities:  make(map[string]*domain.CatalogEntity),
		links:     make(map[int64][]catalog.ProviderLink),
		latest:    make(map[latestKey]*domain.Observation),
		history:   make(map[historyKey]float64),
		schedules: make(map[string]*domain.ProviderSchedule),
		jobs:      make(map[string]*domain.Job),
	}
}

// -----------------------------------------------------------------------------
// Entity repository
// -----------------------------------------------------------------------------

type EntityRepo struct {
	store *Store
}

func NewEntityRepo(store *Store) *EntityRepo {
	return &EntityRepo{store: store}
}

func (r *EntityRepo) FindByKey(ctx context.Context, key string) (*domain.CatalogEntity, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if e, ok := r.store.entities[key]; ok {
		clone := *e
		return &clone, nil
	}
	return nil, nil
}

func (r *EntityRepo) FindByBarcode(ctx context.Context, barcode string) (*domain.CatalogEntity, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, e := range r.store.entities {
		if e.Barcode == barcode {
			clone := *e
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *EntityRepo) CandidatesByBrand(ctx context.Context, brand string, limit int) ([]*domain.CatalogEntity, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.CatalogEntity
	for _, e := range r.store.entities {
		if strings.EqualFold(e.Brand, brand) {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Observation repository
// -----------------------------------------------------------------------------

type ObservationRepo struct {
	store *Store
}

func NewObservationRepo(store *Store) *ObservationRepo {
	return &ObservationRepo{store: store}
}

func (r *ObservationRepo) Latest(ctx context.Context, entityID int64, provider string) (*domain.HistoryPoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if obs, ok := r.store.latest[latestKey{entityID, provider}]; ok {
		return &domain.HistoryPoint{Value: obs.Value, CapturedAt: obs.CapturedAt}, nil
	}
	return nil, nil
}

func (r *ObservationRepo) TrailingHistory(ctx context.Context, entityID int64, provider string, limit int) ([]domain.HistoryPoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var points []domain.HistoryPoint
	for k, v := range r.store.history {
		if k.entityID == entityID && k.provider == provider {
			points = append(points, domain.HistoryPoint{
				Value:      v,
				CapturedAt: time.Unix(k.capturedAt, 0).UTC(),
			})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].CapturedAt.After(points[j].CapturedAt) })
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (r *ObservationRepo) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for k := range r.store.history {
		if time.Unix(k.capturedAt, 0).Before(cutoff) {
			delete(r.store.history, k)
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Schedule repository
// -----------------------------------------------------------------------------

type ScheduleRepo struct {
	store *Store
}

func NewScheduleRepo(store *Store) *ScheduleRepo {
	return &ScheduleRepo{store: store}
}

func (r *ScheduleRepo) GetAll(ctx context.Context) ([]*domain.ProviderSchedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.ProviderSchedule, 0, len(r.store.schedules))
	for _, s := range r.store.schedules {
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *ScheduleRepo) Get(ctx context.Context, provider string) (*domain.ProviderSchedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if s, ok := r.store.schedules[provider]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, nil
}

func (r *ScheduleRepo) Upsert(ctx context.Context, s *domain.ProviderSchedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *s
	clone.UpdatedAt = time.Now().UTC()
	if existing, ok := r.store.schedules[s.Provider]; ok {
		clone.LastRun = existing.LastRun
		if clone.NextRun == nil {
			clone.NextRun = existing.NextRun
		}
	}
	r.store.schedules[s.Provider] = &clone
	return nil
}

func (r *ScheduleRepo) MarkRun(ctx context.Context, provider string, lastRun, nextRun time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.schedules[provider]
	if !ok {
		return nil
	}
	lr, nr := lastRun, nextRun
	s.LastRun = &lr
	s.NextRun = &nr
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// -----------------------------------------------------------------------------
// Job repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *Store
}

func NewJobRepo(store *Store) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Save(ctx context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *job
	if _, ok := r.store.jobs[job.ID]; !ok {
		r.store.jobOrder = append(r.store.jobOrder, job.ID)
	}
	r.store.jobs[job.ID] = &clone
	return nil
}

func (r *JobRepo) List(ctx context.Context, provider string, limit int) ([]*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Job
	for i := len(r.store.jobOrder) - 1; i >= 0; i-- {
		j := r.store.jobs[r.store.jobOrder[i]]
		if provider != "" && j.Provider != provider {
			continue
		}
		clone := *j
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Alert repository
// -----------------------------------------------------------------------------

type AlertRepo struct {
	store *Store
}

func NewAlertRepo(store *Store) *AlertRepo {
	return &AlertRepo{store: store}
}

func (r *AlertRepo) Add(ctx context.Context, alert *domain.Alert) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *alert
	r.store.alerts = append(r.store.alerts, &clone)
	return nil
}

func (r *AlertRepo) List(ctx context.Context, limit int) ([]*domain.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Alert
	for i := len(r.store.alerts) - 1; i >= 0; i-- {
		clone := *r.store.alerts[i]
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *AlertRepo) PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.alerts[:0]
	var n int64
	for _, a := range r.store.alerts {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.store.alerts = kept
	return n, nil
}

// -----------------------------------------------------------------------------
// Batch committer
// -----------------------------------------------------------------------------

type BatchCommitter struct {
	store *Store
}

func NewBatchCommitter(store *Store) *BatchCommitter {
	return &BatchCommitter{store: store}
}

// CommitBatch applies a WriteSet under one lock. Entity upserts are keyed
// by canonical key, latest observations by (entity, provider), history by
// (entity, provider, captured_at); re-applying is a no-op.
func (c *BatchCommitter) CommitBatch(ctx context.Context, ws *catalog.WriteSet) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	now := time.Now().UTC()
	for _, ew := range ws.Entities {
		e, ok := c.store.entities[ew.Key]
		if !ok {
			e = &domain.CatalogEntity{
				ID:        c.store.nextID,
				Key:       ew.Key,
				CreatedAt: now,
			}
			c.store.nextID++
			c.store.entities[ew.Key] = e
		}
		e.CanonicalName = ew.CanonicalName
		e.Brand = ew.Brand
		if ew.Barcode != "" {
			e.Barcode = ew.Barcode
		}
		if ew.UnitType != "" {
			e.UnitType = ew.UnitType
			e.UnitSize = ew.UnitSize
		}
		e.UpdatedAt = now

		for _, link := range ew.Links {
			if !hasLink(c.store.links[e.ID], link) {
				c.store.links[e.ID] = append(c.store.links[e.ID], link)
			}
		}
	}

	for _, obs := range ws.Observations {
		entity, ok := c.store.entities[obs.EntityKey]
		if !ok {
			continue // entity write must precede its observations
		}
		clone := *obs
		clone.EntityID = entity.ID
		c.store.latest[latestKey{entity.ID, obs.Provider}] = &clone
		c.store.history[historyKey{entity.ID, obs.Provider, obs.CapturedAt.Unix()}] = obs.Value
	}

	return nil
}

func hasLink(links []catalog.ProviderLink, l catalog.ProviderLink) bool {
	for _, existing := range links {
		if existing == l {
			return true
		}
	}
	return false
}
