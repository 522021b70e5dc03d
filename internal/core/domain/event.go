package domain

import "time"

// PriceChangeEvent is published when a committed observation differs from
// the prior value for the same (entity, provider) pair.
type PriceChangeEvent struct {
	EntityKey string    `json:"entity"`
	Provider  string    `json:"provider"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	ChangePct float64   `json:"percent_change"`
	At        time.Time `json:"timestamp"`
}

// SystemAlertEvent mirrors an Alert on the event surface.
type SystemAlertEvent struct {
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"`
	At        time.Time `json:"timestamp"`
}
