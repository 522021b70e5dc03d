package domain

import "time"

// RawRecord is a single product/price reading as produced by a provider
// adapter. Consumed once by the reconciliation pipeline, never persisted.
type RawRecord struct {
	Provider      string
	LocalID       string
	Name          string
	Brand         string
	Price         float64
	OriginalPrice float64 // pre-promotion price, 0 when absent
	Currency      string
	Available     bool
	Barcode       string
	CapturedAt    time.Time
}
