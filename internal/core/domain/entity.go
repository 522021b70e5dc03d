package domain

import (
	"strings"
	"time"
)

// NormalizedEntity is the canonical identity derived deterministically from
// one RawRecord: lower-cased, whitespace-collapsed name with provider prefix
// and units stripped, canonicalized brand, and the name token set used for
// similarity scoring.
type NormalizedEntity struct {
	CanonicalName string
	Brand         string
	Tokens        []string
	Barcode       string
	UnitType      string
	UnitSize      float64
	Provider      string
	LocalID       string
}

// Key returns the canonical entity key: the barcode when present, otherwise
// normalized name + brand.
func (e *NormalizedEntity) Key() string {
	if e.Barcode != "" {
		return "ean:" + e.Barcode
	}
	return e.CanonicalName + "|" + strings.ToLower(e.Brand)
}

// CatalogEntity is the stored canonical entity row.
type CatalogEntity struct {
	ID            int64
	Key           string
	CanonicalName string
	Brand         string
	Barcode       string
	UnitType      string
	UnitSize      float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MergeAction says what the dedup stage decided for a candidate.
type MergeAction string

const (
	MergeActionCreate        MergeAction = "create"
	MergeActionMergeExisting MergeAction = "merge_existing"
	MergeActionMergeInBatch  MergeAction = "merge_in_batch"
)

// DuplicateCandidate is the intermediate decision artifact produced by the
// dedup stage. It is never persisted.
type DuplicateCandidate struct {
	Entity       *NormalizedEntity
	Existing     *CatalogEntity    // set for merges against the catalog
	BatchPartner *NormalizedEntity // set for merges within the same batch
	Score        float64
	CanonicalKey string
	Action       MergeAction
}
