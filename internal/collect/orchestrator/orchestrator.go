// Package orchestrator owns the job lifecycle: scheduling, admission,
// bounded concurrency, and the per-provider run loop.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/collect/adapter"
	"github.com/jvbeek/pricewatch/internal/collect/retry"
	"github.com/jvbeek/pricewatch/internal/core/config"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/core/schedule"
	"github.com/jvbeek/pricewatch/internal/events"
	"github.com/jvbeek/pricewatch/internal/reconcile"
)

// runHandle tracks one in-flight job and its cancel function.
type runHandle struct {
	mu     sync.Mutex
	job    *domain.Job
	cancel context.CancelFunc
}

func (h *runHandle) snapshot() domain.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.job
}

// Orchestrator admits, schedules, and supervises collection jobs. At most
// one job runs per provider; a weighted semaphore bounds total
// concurrency across providers.
type Orchestrator struct {
	cfg       config.OrchestratorConfig
	policy    *retry.Policy
	adapters  *adapter.Registry
	pipeline  *reconcile.Pipeline
	schedules catalog.ScheduleRepository
	jobs      catalog.JobRepository
	alerts    catalog.AlertRepository
	emitter   events.Emitter
	logger    *slog.Logger

	sem     *semaphore.Weighted
	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]*runHandle // provider -> in-flight run
}

// New creates an orchestrator.
func New(
	cfg config.OrchestratorConfig,
	policy *retry.Policy,
	adapters *adapter.Registry,
	pipeline *reconcile.Pipeline,
	schedules catalog.ScheduleRepository,
	jobs catalog.JobRepository,
	alerts catalog.AlertRepository,
	emitter events.Emitter,
	logger *slog.Logger,
) *Orchestrator {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		policy:    policy,
		adapters:  adapters,
		pipeline:  pipeline,
		schedules: schedules,
		jobs:      jobs,
		alerts:    alerts,
		emitter:   emitter,
		logger:    logger.With("component", "orchestrator"),
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		stop:      make(chan struct{}),
		active:    make(map[string]*runHandle),
	}
}

// Start runs the scheduler tick loop until the context is canceled or
// Shutdown is called. Jobs started manually via StartJob run regardless.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator already running")
	}
	defer o.running.Store(false)

	ticker := time.NewTicker(o.cfg.TickInterval.Std())
	defer ticker.Stop()

	o.logger.InfoContext(ctx, "scheduler started", "tick", o.cfg.TickInterval.Std())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.stop:
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick starts a run for every active schedule that is due.
func (o *Orchestrator) tick(ctx context.Context) {
	schedules, err := o.schedules.GetAll(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to load schedules", "error", err)
		return
	}

	now := time.Now()
	for _, s := range schedules {
		if !s.Active {
			continue
		}
		sched, err := schedule.Parse(s.Expression, s.Timezone)
		if err != nil {
			o.logger.WarnContext(ctx, "schedule skipped",
				"provider", s.Provider, "expression", s.Expression, "error", err)
			continue
		}
		// A schedule that never ran anchors on its registration time.
		lastRun := s.UpdatedAt
		if s.LastRun != nil {
			lastRun = *s.LastRun
		}
		if !sched.IsDue(lastRun, now) {
			continue
		}

		if _, err := o.StartJob(ctx, s.Provider, domain.JobKindFullSync); err != nil {
			if f, ok := domain.AsFailure(err); ok && f.Kind == domain.FailureJobAlreadyRunning {
				continue // previous run still going, next tick retries
			}
			o.logger.ErrorContext(ctx, "failed to start scheduled job",
				"provider", s.Provider, "error", err)
		}
	}
}

// StartJob admits one job for a provider. Returns a job_already_running
// failure when the provider has an in-flight run, and provider_unknown
// when no adapter is registered.
func (o *Orchestrator) StartJob(ctx context.Context, provider string, kind domain.JobKind) (*domain.Job, error) {
	if !kind.Valid() {
		return nil, domain.NewFailure(domain.FailureUnknown, fmt.Sprintf("invalid job kind %q", kind), nil)
	}
	ad, err := o.adapters.Get(provider)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Provider:  provider,
		Kind:      kind,
		State:     domain.JobStateIdle,
		CreatedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	if _, busy := o.active[provider]; busy {
		o.mu.Unlock()
		return nil, domain.NewFailure(domain.FailureJobAlreadyRunning,
			fmt.Sprintf("provider %s already has a running job", provider), nil)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &runHandle{job: job, cancel: cancel}
	o.active[provider] = handle
	o.mu.Unlock()

	o.transition(ctx, handle, domain.JobStateQueued)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(runCtx, handle, ad)

		o.mu.Lock()
		delete(o.active, provider)
		o.mu.Unlock()
	}()

	snapshot := handle.snapshot()
	return &snapshot, nil
}

// StopJob cancels the in-flight job with the given ID. The run winds down
// cooperatively; committed batches stay committed.
func (o *Orchestrator) StopJob(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range o.active {
		if h.snapshot().ID == jobID {
			h.cancel()
			return true
		}
	}
	return false
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running       bool         `json:"running"`
	MaxConcurrent int          `json:"max_concurrent"`
	Active        []domain.Job `json:"active_jobs"`
}

// Status reports the scheduler state and active runs.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Running:       o.running.Load(),
		MaxConcurrent: o.cfg.MaxConcurrent,
	}
	for _, h := range o.active {
		st.Active = append(st.Active, h.snapshot())
	}
	return st
}

// Shutdown stops the tick loop, cancels in-flight runs, and waits for
// them to finish persisting their terminal state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.running.CompareAndSwap(true, false) {
		close(o.stop)
	}

	o.mu.Lock()
	for _, h := range o.active {
		h.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// transition moves a job forward through the state machine and persists
// the snapshot. Illegal transitions are a programming error and logged.
func (o *Orchestrator) transition(ctx context.Context, h *runHandle, next domain.JobState) {
	h.mu.Lock()
	if !h.job.State.CanTransition(next) {
		state := h.job.State
		h.mu.Unlock()
		o.logger.ErrorContext(ctx, "illegal job transition",
			"job_id", h.job.ID, "from", state, "to", next)
		return
	}
	h.job.State = next
	now := time.Now().UTC()
	switch next {
	case domain.JobStateRunning:
		h.job.StartedAt = &now
	case domain.JobStateSucceeded, domain.JobStateFailed, domain.JobStatePartiallyFailed:
		h.job.FinishedAt = &now
	}
	snapshot := *h.job
	h.mu.Unlock()

	if err := o.jobs.Save(ctx, &snapshot); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist job", "job_id", snapshot.ID, "error", err)
	}
}
