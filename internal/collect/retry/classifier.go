// Package retry classifies batch failures and decides retry behavior.
package retry

import (
	"context"
	"errors"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// Classify maps an error to a failure kind using structured metadata.
// Adapters and the storage layer return *domain.Failure; anything untyped
// is Unknown, which is never retried blindly.
func Classify(err error) domain.FailureKind {
	if err == nil {
		return ""
	}
	if f, ok := domain.AsFailure(err); ok {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTransientNetwork
	}
	return domain.FailureUnknown
}
