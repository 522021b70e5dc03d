package domain

import "time"

// JobKind selects what a collection run does.
type JobKind string

const (
	JobKindFullSync     JobKind = "full_sync"
	JobKindPriceUpdate  JobKind = "price_update"
	JobKindValidateOnly JobKind = "validate_only"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindFullSync, JobKindPriceUpdate, JobKindValidateOnly:
		return true
	}
	return false
}

// JobState is the lifecycle state of a collection run.
type JobState string

const (
	JobStateIdle            JobState = "idle"
	JobStateQueued          JobState = "queued"
	JobStateRunning         JobState = "running"
	JobStateSucceeded       JobState = "succeeded"
	JobStateFailed          JobState = "failed"
	JobStatePartiallyFailed JobState = "partially_failed"
)

// Terminal reports whether the state is final. Terminal jobs are immutable.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStatePartiallyFailed:
		return true
	}
	return false
}

// jobTransitions defines the forward-only state machine:
// idle -> queued -> running -> {succeeded, failed, partially_failed}.
// A queued job may fail directly when the adapter cannot be resolved.
var jobTransitions = map[JobState][]JobState{
	JobStateIdle:    {JobStateQueued},
	JobStateQueued:  {JobStateRunning, JobStateFailed},
	JobStateRunning: {JobStateSucceeded, JobStateFailed, JobStatePartiallyFailed},
}

// CanTransition reports whether moving from s to next is allowed.
func (s JobState) CanTransition(next JobState) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is one scheduled or manual execution of a provider's collection run.
// Owned exclusively by the orchestrator; retained for audit after finishing.
type Job struct {
	ID               string      `json:"id"`
	Provider         string      `json:"provider"`
	Kind             JobKind     `json:"kind"`
	State            JobState    `json:"state"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
	RecordsProcessed int         `json:"records_processed"`
	RecordsSkipped   int         `json:"records_skipped"`
	BatchesCommitted int         `json:"batches_committed"`
	BatchesFailed    int         `json:"batches_failed"`
	ErrorCount       int         `json:"error_count"`
	LastErrorKind    FailureKind `json:"last_error_kind,omitempty"`
	LastError        string      `json:"last_error,omitempty"`
}
