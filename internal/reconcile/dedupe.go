package reconcile

import (
	"context"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// candidateLimit bounds how many same-brand catalog entities one record is
// compared against.
const candidateLimit = 50

// Similarity scores how likely two normalized entities describe the same
// product. Symmetric by construction. Barcode equality is decisive; a
// brand conflict zeroes the score; otherwise the score blends token
// overlap with edit-distance similarity of the canonical names.
func Similarity(a, b *domain.NormalizedEntity) float64 {
	if a.Barcode != "" && a.Barcode == b.Barcode {
		return 1.0
	}
	if a.Brand != "" && b.Brand != "" && !strings.EqualFold(a.Brand, b.Brand) {
		return 0.0
	}

	overlap := tokenOverlap(a.Tokens, b.Tokens)
	edit := levenshtein.Similarity(a.CanonicalName, b.CanonicalName, nil)
	return 0.5*overlap + 0.5*edit
}

// tokenOverlap is the shared-token fraction relative to the smaller token
// set, so a strict subset ("nutrilon baby formula" against the same name
// plus a size suffix) still scores 1.0.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

// Deduper resolves each normalized entity to its canonical key, merging
// near-duplicates against the catalog and within the running batch.
type Deduper struct {
	entities  catalog.EntityRepository
	threshold float64

	// batch holds entities already resolved in this pass, keyed by their
	// canonical key, so in-batch duplicates collapse onto one key.
	batch map[string]*domain.NormalizedEntity
}

// NewDeduper creates a deduper for one reconciliation pass.
func NewDeduper(entities catalog.EntityRepository, threshold float64) *Deduper {
	return &Deduper{
		entities:  entities,
		threshold: threshold,
		batch:     make(map[string]*domain.NormalizedEntity),
	}
}

// Resolve decides the canonical key and merge action for one entity.
func (d *Deduper) Resolve(ctx context.Context, e *domain.NormalizedEntity) (*domain.DuplicateCandidate, error) {
	// Exact barcode match against the catalog wins outright.
	if e.Barcode != "" {
		existing, err := d.entities.FindByBarcode(ctx, e.Barcode)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return d.record(&domain.DuplicateCandidate{
				Entity:       e,
				Existing:     existing,
				Score:        1.0,
				CanonicalKey: existing.Key,
				Action:       domain.MergeActionMergeExisting,
			}), nil
		}
	}

	// Exact key match is the common case and needs no scoring.
	if existing, err := d.entities.FindByKey(ctx, e.Key()); err != nil {
		return nil, err
	} else if existing != nil {
		return d.record(&domain.DuplicateCandidate{
			Entity:       e,
			Existing:     existing,
			Score:        1.0,
			CanonicalKey: existing.Key,
			Action:       domain.MergeActionMergeExisting,
		}), nil
	}

	// Fuzzy match against same-brand catalog entities. The existing entity
	// always keeps the canonical key: it owns the observation history, and
	// the entity upsert is gain-only, so the newcomer's barcode and unit
	// fields fold into the existing row instead of splitting the cluster.
	best, bestScore, err := d.bestCatalogMatch(ctx, e)
	if err != nil {
		return nil, err
	}
	if best != nil && bestScore >= d.threshold {
		return d.record(&domain.DuplicateCandidate{
			Entity:       e,
			Existing:     best,
			Score:        bestScore,
			CanonicalKey: best.Key,
			Action:       domain.MergeActionMergeExisting,
		}), nil
	}

	// Fuzzy match against entities earlier in this batch. The first-seen
	// entity of a cluster keeps the canonical key; the newcomer's fields
	// merge into the same pending write.
	if partner, key, score := d.bestBatchMatch(e); partner != nil && score >= d.threshold {
		return d.record(&domain.DuplicateCandidate{
			Entity:       e,
			BatchPartner: partner,
			Score:        score,
			CanonicalKey: key,
			Action:       domain.MergeActionMergeInBatch,
		}), nil
	}

	return d.record(&domain.DuplicateCandidate{
		Entity:       e,
		Score:        0,
		CanonicalKey: e.Key(),
		Action:       domain.MergeActionCreate,
	}), nil
}

func (d *Deduper) record(c *domain.DuplicateCandidate) *domain.DuplicateCandidate {
	if _, ok := d.batch[c.CanonicalKey]; !ok {
		d.batch[c.CanonicalKey] = c.Entity
	}
	return c
}

func (d *Deduper) bestCatalogMatch(ctx context.Context, e *domain.NormalizedEntity) (*domain.CatalogEntity, float64, error) {
	if e.Brand == "" {
		return nil, 0, nil
	}
	candidates, err := d.entities.CandidatesByBrand(ctx, e.Brand, candidateLimit)
	if err != nil {
		return nil, 0, err
	}

	var (
		best      *domain.CatalogEntity
		bestScore float64
	)
	for _, c := range candidates {
		score := Similarity(e, catalogAsNormalized(c))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore, nil
}

func (d *Deduper) bestBatchMatch(e *domain.NormalizedEntity) (*domain.NormalizedEntity, string, float64) {
	var (
		best      *domain.NormalizedEntity
		bestKey   string
		bestScore float64
	)
	keys := make([]string, 0, len(d.batch))
	for k := range d.batch {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic scan order
	for _, k := range keys {
		partner := d.batch[k]
		score := Similarity(e, partner)
		if score > bestScore {
			best, bestKey, bestScore = partner, k, score
		}
	}
	return best, bestKey, bestScore
}

func catalogAsNormalized(c *domain.CatalogEntity) *domain.NormalizedEntity {
	return &domain.NormalizedEntity{
		CanonicalName: c.CanonicalName,
		Brand:         c.Brand,
		Tokens:        strings.Fields(c.CanonicalName),
		Barcode:       c.Barcode,
		UnitType:      c.UnitType,
		UnitSize:      c.UnitSize,
	}
}
