package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/events"
	"github.com/jvbeek/pricewatch/internal/metrics"
)

// suspiciousDiscountPct is the promotion discount above which an alert is
// raised instead of trusted silently.
const suspiciousDiscountPct = 90.0

// Result summarizes one processed batch.
type Result struct {
	Processed int
	Skipped   int
	Outliers  int
}

// Pipeline reconciles one batch of raw records into catalog writes.
// Normalize, dedupe, validate, translate, commit; outliers are committed
// but alerted, parse failures are skipped and counted.
type Pipeline struct {
	entities     catalog.EntityRepository
	observations catalog.ObservationRepository
	alerts       catalog.AlertRepository
	committer    catalog.BatchCommitter
	validator    *Validator
	emitter      events.Emitter
	threshold    float64
	logger       *slog.Logger
}

// NewPipeline wires a reconciliation pipeline.
func NewPipeline(
	entities catalog.EntityRepository,
	observations catalog.ObservationRepository,
	alerts catalog.AlertRepository,
	committer catalog.BatchCommitter,
	validator *Validator,
	emitter events.Emitter,
	threshold float64,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		entities:     entities,
		observations: observations,
		alerts:       alerts,
		committer:    committer,
		validator:    validator,
		emitter:      emitter,
		threshold:    threshold,
		logger:       logger.With("component", "reconcile"),
	}
}

// obsKey identifies one observation slot within a batch.
type obsKey struct {
	entityKey string
	provider  string
}

// ProcessBatch runs the full pipeline over one batch. The returned error
// is nil for batches that merely skipped records; only storage failures
// surface so the caller can retry the batch as a unit. With validateOnly
// set, nothing is committed and no events fire.
func (p *Pipeline) ProcessBatch(ctx context.Context, jobID string, records []*domain.RawRecord, validateOnly bool) (Result, error) {
	var res Result

	deduper := NewDeduper(p.entities, p.threshold)
	writes := make(map[string]*catalog.EntityWrite)
	order := make([]string, 0, len(records))
	observations := make(map[obsKey]*domain.Observation)
	obsOrder := make([]obsKey, 0, len(records))
	var changes []*domain.PriceChangeEvent
	var raised []*domain.Alert

	for _, rec := range records {
		entity, err := Normalize(rec)
		if err != nil {
			res.Skipped++
			metrics.RecordsSkipped.WithLabelValues(rec.Provider, "parse").Inc()
			p.logger.DebugContext(ctx, "record skipped",
				"provider", rec.Provider, "local_id", rec.LocalID, "error", err)
			continue
		}

		candidate, err := deduper.Resolve(ctx, entity)
		if err != nil {
			return res, fmt.Errorf("failed to resolve entity: %w", err)
		}
		if candidate.Action != domain.MergeActionCreate {
			metrics.EntitiesMerged.WithLabelValues(string(candidate.Action)).Inc()
		}

		key := candidate.CanonicalKey
		ew, ok := writes[key]
		if !ok {
			ew = &catalog.EntityWrite{Key: key}
			writes[key] = ew
			order = append(order, key)
		}
		mergeEntityWrite(ew, entity, candidate.Existing)

		obs := &domain.Observation{
			EntityKey:   key,
			Provider:    entity.Provider,
			Value:       rec.Price,
			CapturedAt:  rec.CapturedAt.UTC(),
			Promotion:   rec.OriginalPrice > rec.Price && rec.OriginalPrice > 0,
			DiscountPct: discountPct(rec.Price, rec.OriginalPrice),
		}

		if obs.Promotion && obs.DiscountPct > suspiciousDiscountPct {
			raised = append(raised, &domain.Alert{
				ID:        uuid.NewString(),
				Severity:  domain.SeverityWarning,
				Component: "reconcile",
				Message: fmt.Sprintf("suspicious discount of %.1f%% on %q (%s)",
					obs.DiscountPct, ew.CanonicalName, entity.Provider),
				JobID:     jobID,
				CreatedAt: time.Now().UTC(),
			})
		}

		if candidate.Existing != nil {
			if err := p.enrich(ctx, obs, candidate.Existing, jobID, &raised, &res); err != nil {
				return res, err
			}
		}

		k := obsKey{key, entity.Provider}
		if _, seen := observations[k]; !seen {
			obsOrder = append(obsOrder, k)
		}
		observations[k] = obs // last record in the batch wins the slot

		if obs.PriorValue != nil && *obs.PriorValue != obs.Value {
			changes = append(changes, &domain.PriceChangeEvent{
				EntityKey: key,
				Provider:  entity.Provider,
				OldValue:  *obs.PriorValue,
				NewValue:  obs.Value,
				ChangePct: *obs.ChangePct,
				At:        obs.CapturedAt,
			})
		}

		res.Processed++
		metrics.RecordsProcessed.WithLabelValues(entity.Provider).Inc()
	}

	if validateOnly {
		return res, nil
	}

	ws := &catalog.WriteSet{}
	for _, key := range order {
		ws.Entities = append(ws.Entities, writes[key])
	}
	for _, k := range obsOrder {
		ws.Observations = append(ws.Observations, observations[k])
	}

	if err := p.committer.CommitBatch(ctx, ws); err != nil {
		return res, err
	}

	// Events and alerts only after the batch is durable.
	for _, ev := range changes {
		if err := p.emitter.PriceChange(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "failed to emit price change", "error", err)
		}
	}
	for _, alert := range raised {
		p.raise(ctx, alert)
	}

	return res, nil
}

// enrich fills prior value, change percentage, and the outlier verdict for
// an observation against an existing catalog entity.
func (p *Pipeline) enrich(ctx context.Context, obs *domain.Observation, existing *domain.CatalogEntity, jobID string, raised *[]*domain.Alert, res *Result) error {
	obs.EntityID = existing.ID

	prior, err := p.observations.Latest(ctx, existing.ID, obs.Provider)
	if err != nil {
		return fmt.Errorf("failed to load prior observation: %w", err)
	}
	if prior != nil && prior.Value > 0 {
		pv := prior.Value
		pct := (obs.Value - pv) / pv * 100
		obs.PriorValue = &pv
		obs.ChangePct = &pct
	}

	verdict, err := p.validator.Check(ctx, existing.ID, obs.Provider, obs.Value)
	if err != nil {
		return fmt.Errorf("failed to validate observation: %w", err)
	}
	if verdict.Outlier {
		obs.Outlier = true
		obs.Confidence = verdict.Confidence
		res.Outliers++
		metrics.OutliersDetected.WithLabelValues(obs.Provider).Inc()
		*raised = append(*raised, &domain.Alert{
			ID:        uuid.NewString(),
			Severity:  verdict.Severity,
			Component: "validation",
			Message: fmt.Sprintf("price %.2f for %q (%s) outside expected range around %.2f, confidence %.2f",
				obs.Value, existing.CanonicalName, obs.Provider, verdict.Expected, verdict.Confidence),
			JobID:     jobID,
			CreatedAt: time.Now().UTC(),
		})
	}
	return nil
}

// raise persists an alert and mirrors it on the event surface.
func (p *Pipeline) raise(ctx context.Context, alert *domain.Alert) {
	metrics.AlertsRaised.WithLabelValues(string(alert.Severity), alert.Component).Inc()
	if err := p.alerts.Add(ctx, alert); err != nil {
		p.logger.WarnContext(ctx, "failed to persist alert", "error", err)
	}
	if err := p.emitter.SystemAlert(ctx, &domain.SystemAlertEvent{
		Severity:  alert.Severity,
		Component: alert.Component,
		Message:   alert.Message,
		JobID:     alert.JobID,
		At:        alert.CreatedAt,
	}); err != nil {
		p.logger.WarnContext(ctx, "failed to emit alert", "error", err)
	}
}

// mergeEntityWrite folds one normalized entity into the pending write for
// its canonical key. Optional fields only ever gain information.
func mergeEntityWrite(ew *catalog.EntityWrite, e *domain.NormalizedEntity, existing *domain.CatalogEntity) {
	if ew.CanonicalName == "" {
		if existing != nil {
			ew.CanonicalName = existing.CanonicalName
			ew.Brand = existing.Brand
		} else {
			ew.CanonicalName = e.CanonicalName
			ew.Brand = e.Brand
		}
	}
	if ew.Brand == "" {
		ew.Brand = e.Brand
	}
	if ew.Barcode == "" {
		ew.Barcode = e.Barcode
	}
	if ew.UnitType == "" && e.UnitType != "" {
		ew.UnitType = e.UnitType
		ew.UnitSize = e.UnitSize
	}
	ew.Links = appendLink(ew.Links, catalog.ProviderLink{Provider: e.Provider, LocalID: e.LocalID})
}

func appendLink(links []catalog.ProviderLink, l catalog.ProviderLink) []catalog.ProviderLink {
	for _, existing := range links {
		if existing == l {
			return links
		}
	}
	return append(links, l)
}

func discountPct(price, original float64) float64 {
	if original <= 0 || original <= price {
		return 0
	}
	return (original - price) / original * 100
}
