package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jvbeek/pricewatch/internal/collect/adapter"
	"github.com/jvbeek/pricewatch/internal/collect/retry"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/core/schedule"
	"github.com/jvbeek/pricewatch/internal/metrics"
)

// run executes one job end to end: acquire a concurrency slot, walk the
// adapter's cursor, reconcile each batch, and persist the terminal state.
func (o *Orchestrator) run(ctx context.Context, h *runHandle, ad adapter.Adapter) {
	job := h.snapshot()
	logger := o.logger.With("job_id", job.ID, "provider", job.Provider, "kind", job.Kind)

	// pctx survives cancellation so terminal bookkeeping still persists.
	pctx := context.WithoutCancel(ctx)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.noteError(h, domain.FailureUnknown, "job canceled while queued")
		o.transition(pctx, h, domain.JobStateFailed)
		metrics.JobsTotal.WithLabelValues(job.Provider, string(domain.JobStateFailed)).Inc()
		return
	}
	defer o.sem.Release(1)

	o.transition(ctx, h, domain.JobStateRunning)
	metrics.JobsRunning.WithLabelValues(job.Provider).Inc()
	defer metrics.JobsRunning.WithLabelValues(job.Provider).Dec()
	logger.InfoContext(ctx, "job started")

	state := o.collect(ctx, h, ad)
	o.transition(pctx, h, state)
	metrics.JobsTotal.WithLabelValues(job.Provider, string(state)).Inc()

	final := h.snapshot()
	logger.InfoContext(pctx, "job finished",
		"state", final.State,
		"records_processed", final.RecordsProcessed,
		"records_skipped", final.RecordsSkipped,
		"batches_committed", final.BatchesCommitted,
		"batches_failed", final.BatchesFailed)

	if state != domain.JobStateSucceeded {
		o.alertTerminalFailure(pctx, &final)
	}
	o.markRun(pctx, final.Provider)
}

// collect walks the adapter cursor until Done, retrying failed batches per
// the policy. The returned state is the job's terminal state.
func (o *Orchestrator) collect(ctx context.Context, h *runHandle, ad adapter.Adapter) domain.JobState {
	validateOnly := h.snapshot().Kind == domain.JobKindValidateOnly
	cursor := ""
	attempt, rlAttempt := 0, 0

	for {
		if ctx.Err() != nil {
			return o.canceled(h)
		}

		fetchStart := time.Now()
		fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout.Std())
		batch, err := ad.FetchBatch(fetchCtx, cursor)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return o.canceled(h)
			}
			kind := retry.Classify(err)
			o.noteError(h, kind, err.Error())
			metrics.FetchErrorsTotal.WithLabelValues(h.snapshot().Provider, string(kind)).Inc()

			var retryAfter time.Duration
			if f, ok := domain.AsFailure(err); ok {
				retryAfter = f.RetryAfter
			}
			d := o.policy.Decide(kind, attempt, rlAttempt, retryAfter)
			switch {
			case d.Retry:
				if kind == domain.FailureRateLimited {
					rlAttempt++
				} else {
					attempt++
				}
				if !o.sleep(ctx, d.Delay) {
					return o.canceled(h)
				}
				continue
			case d.Fatal:
				return domain.JobStateFailed
			default:
				// Retries exhausted for this batch. The cursor cannot
				// advance past a failed fetch, so the run ends here with
				// whatever was committed.
				h.mu.Lock()
				h.job.BatchesFailed++
				committed := h.job.BatchesCommitted
				h.mu.Unlock()
				if committed > 0 {
					return domain.JobStatePartiallyFailed
				}
				return domain.JobStateFailed
			}
		}
		metrics.FetchLatency.WithLabelValues(h.snapshot().Provider).Observe(time.Since(fetchStart).Seconds())
		attempt, rlAttempt = 0, 0

		state, done := o.processBatch(ctx, h, batch, validateOnly)
		if done {
			return state
		}

		o.persist(ctx, h)

		if batch.Done {
			break
		}
		cursor = batch.NextCursor
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.BatchesFailed > 0 {
		return domain.JobStatePartiallyFailed
	}
	return domain.JobStateSucceeded
}

// processBatch reconciles one batch with storage retries. done is true
// when the run must stop with the returned terminal state.
func (o *Orchestrator) processBatch(ctx context.Context, h *runHandle, batch adapter.Batch, validateOnly bool) (domain.JobState, bool) {
	if len(batch.Records) == 0 {
		return "", false
	}

	records := make([]*domain.RawRecord, len(batch.Records))
	for i := range batch.Records {
		records[i] = &batch.Records[i]
	}
	jobID := h.snapshot().ID

	for attempt := 0; ; attempt++ {
		res, err := o.pipeline.ProcessBatch(ctx, jobID, records, validateOnly)
		if err == nil {
			h.mu.Lock()
			h.job.RecordsProcessed += res.Processed
			h.job.RecordsSkipped += res.Skipped
			if !validateOnly {
				h.job.BatchesCommitted++
			}
			h.mu.Unlock()
			return "", false
		}
		if ctx.Err() != nil {
			return o.canceled(h), true
		}

		kind := retry.Classify(err)
		o.noteError(h, kind, err.Error())
		d := o.policy.Decide(kind, attempt, 0, 0)
		if d.Retry {
			if !o.sleep(ctx, d.Delay) {
				return o.canceled(h), true
			}
			continue
		}
		if d.Fatal {
			return domain.JobStateFailed, true
		}
		// Non-fatal exhaustion: record the failed batch and move on.
		h.mu.Lock()
		h.job.BatchesFailed++
		h.mu.Unlock()
		return "", false
	}
}

// canceled settles the terminal state for a stopped run: committed work
// stands, so a run with commits ends partially failed.
func (o *Orchestrator) canceled(h *runHandle) domain.JobState {
	o.noteError(h, domain.FailureUnknown, "job canceled")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.job.BatchesCommitted > 0 {
		return domain.JobStatePartiallyFailed
	}
	return domain.JobStateFailed
}

// noteError records the most recent failure on the job.
func (o *Orchestrator) noteError(h *runHandle, kind domain.FailureKind, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.job.ErrorCount++
	h.job.LastErrorKind = kind
	h.job.LastError = msg
}

// persist saves the current job snapshot mid-run for status readers.
func (o *Orchestrator) persist(ctx context.Context, h *runHandle) {
	snapshot := h.snapshot()
	if err := o.jobs.Save(ctx, &snapshot); err != nil {
		o.logger.WarnContext(ctx, "failed to persist job progress", "job_id", snapshot.ID, "error", err)
	}
}

// sleep waits for d or until the context is canceled.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// alertTerminalFailure raises an alert and mirrors it on the event surface
// when a run ends failed or partially failed.
func (o *Orchestrator) alertTerminalFailure(ctx context.Context, job *domain.Job) {
	severity := domain.SeverityWarning
	if job.State == domain.JobStateFailed {
		severity = domain.SeverityCritical
	}
	alert := &domain.Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Component: "orchestrator",
		Message: string(job.Kind) + " run for " + job.Provider + " ended " + string(job.State) +
			": " + job.LastError,
		JobID:     job.ID,
		CreatedAt: time.Now().UTC(),
	}
	metrics.AlertsRaised.WithLabelValues(string(alert.Severity), alert.Component).Inc()
	if err := o.alerts.Add(ctx, alert); err != nil {
		o.logger.WarnContext(ctx, "failed to persist alert", "error", err)
	}
	if err := o.emitter.SystemAlert(ctx, &domain.SystemAlertEvent{
		Severity:  alert.Severity,
		Component: alert.Component,
		Message:   alert.Message,
		JobID:     alert.JobID,
		At:        alert.CreatedAt,
	}); err != nil {
		o.logger.WarnContext(ctx, "failed to emit alert", "error", err)
	}
}

// markRun stamps the schedule with this run and its next fire time so the
// tick loop does not double-trigger.
func (o *Orchestrator) markRun(ctx context.Context, provider string) {
	s, err := o.schedules.Get(ctx, provider)
	if err != nil || s == nil {
		return
	}
	sched, err := schedule.Parse(s.Expression, s.Timezone)
	if err != nil {
		return
	}
	now := time.Now()
	if err := o.schedules.MarkRun(ctx, provider, now, sched.Next(now)); err != nil {
		o.logger.WarnContext(ctx, "failed to mark schedule run", "provider", provider, "error", err)
	}
}
