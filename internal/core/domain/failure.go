package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind is the fixed failure taxonomy. Classification works on
// structured metadata supplied by the adapter, never on message text.
type FailureKind string

const (
	FailureTransientNetwork  FailureKind = "transient_network"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureRecordParse       FailureKind = "record_parse"
	FailureStorage           FailureKind = "storage"
	FailureInvalidSchedule   FailureKind = "invalid_schedule"
	FailureProviderUnknown   FailureKind = "provider_unknown"
	FailureJobAlreadyRunning FailureKind = "job_already_running"
	FailureUnknown           FailureKind = "unknown"
)

// Failure carries structured failure metadata from an adapter or the
// storage layer. StatusCode and RetryAfter are optional hints.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	RetryAfter time.Duration // provider-declared cooldown for rate limits
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a Failure of the given kind.
func NewFailure(kind FailureKind, msg string, err error) *Failure {
	return &Failure{Kind: kind, Message: msg, Err: err}
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
