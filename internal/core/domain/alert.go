package domain

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a proactive failure or anomaly signal. Alerts are the only push
// channel; everything else is pull-based via job status.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"` // empty when not tied to a run
	CreatedAt time.Time `json:"created_at"`
}
