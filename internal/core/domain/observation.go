package domain

import "time"

// Observation is one price reading for a (entity, provider) pair after
// reconciliation. Every committed observation produces both a latest-value
// upsert and an append-only history insert.
type Observation struct {
	EntityID    int64
	EntityKey   string
	Provider    string
	Value       float64
	PriorValue  *float64
	ChangePct   *float64
	Promotion   bool
	DiscountPct float64
	Outlier     bool
	Confidence  float64 // outlier confidence in [0,1], 0 when not flagged
	CapturedAt  time.Time
}

// HistoryPoint is one row of trailing price history.
type HistoryPoint struct {
	Value      float64
	CapturedAt time.Time
}
