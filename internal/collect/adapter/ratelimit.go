package adapter

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// Throttled wraps an Adapter with a minimum inter-request delay and a
// per-call timeout. The limiter is local to one provider, so one slow or
// chatty provider never affects another's timing.
type Throttled struct {
	inner       Adapter
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewThrottled wraps inner with a minimum delay between FetchBatch calls.
func NewThrottled(inner Adapter, minInterval, callTimeout time.Duration) *Throttled {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Throttled{
		inner:       inner,
		limiter:     rate.NewLimiter(limit, 1),
		callTimeout: callTimeout,
	}
}

func (t *Throttled) Provider() string { return t.inner.Provider() }

// FetchBatch waits for the rate limiter, then delegates with a deadline.
// A deadline hit is reported as a transient network failure.
func (t *Throttled) FetchBatch(ctx context.Context, cursor string) (Batch, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Batch{}, err
	}

	callCtx := ctx
	if t.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.callTimeout)
		defer cancel()
	}

	batch, err := t.inner.FetchBatch(callCtx, cursor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Batch{}, domain.NewFailure(domain.FailureTransientNetwork, "adapter call timed out", err)
		}
		return Batch{}, err
	}
	return batch, nil
}
