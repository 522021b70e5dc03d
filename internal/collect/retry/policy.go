package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// Policy decides whether and when a failed batch is retried. Transient
// network and storage failures back off exponentially up to MaxAttempts;
// rate limits cool down against a separate ceiling so a throttling provider
// does not eat the regular retry budget.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	RateLimitCeiling  int
	RateLimitCooldown time.Duration
}

// DefaultPolicy returns the defaults used when configuration is silent.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:       3,
		InitialDelay:      2 * time.Second,
		MaxDelay:          60 * time.Second,
		RateLimitCeiling:  5,
		RateLimitCooldown: 30 * time.Second,
	}
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Retry bool
	Delay time.Duration
	// Fatal marks exhaustion or kinds that abort the whole run rather
	// than just the batch (storage exhaustion, unknown failures).
	Fatal bool
}

// Decide evaluates a classified failure. attempt counts backoff retries for
// this batch (0-indexed), rlAttempt counts rate-limit cooldowns separately.
// retryAfter is the provider-declared cooldown, 0 when absent.
func (p *Policy) Decide(kind domain.FailureKind, attempt, rlAttempt int, retryAfter time.Duration) Decision {
	switch kind {
	case domain.FailureTransientNetwork:
		if attempt >= p.MaxAttempts {
			return Decision{}
		}
		return Decision{Retry: true, Delay: p.backoff(attempt)}

	case domain.FailureStorage:
		if attempt >= p.MaxAttempts {
			return Decision{Fatal: true}
		}
		return Decision{Retry: true, Delay: p.backoff(attempt)}

	case domain.FailureRateLimited:
		if rlAttempt >= p.RateLimitCeiling {
			return Decision{}
		}
		delay := retryAfter
		if delay <= 0 {
			delay = p.RateLimitCooldown
		}
		return Decision{Retry: true, Delay: delay}

	case domain.FailureRecordParse:
		// Absorbed at record level by the pipeline; never a batch retry.
		return Decision{}

	default:
		// Unknown and validation kinds: no recovery strategy can be
		// determined, abort the run.
		return Decision{Fatal: true}
	}
}

// backoff computes InitialDelay * 2^attempt capped at MaxDelay, with up to
// 10% jitter so concurrent retries do not align.
func (p *Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := rand.Int64N(int64(delay)/10 + 1)
	return time.Duration(int64(delay) + jitter)
}
