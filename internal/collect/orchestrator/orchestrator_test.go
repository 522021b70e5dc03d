package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jvbeek/pricewatch/internal/catalog/memory"
	"github.com/jvbeek/pricewatch/internal/collect/adapter"
	"github.com/jvbeek/pricewatch/internal/collect/retry"
	"github.com/jvbeek/pricewatch/internal/core/config"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/events"
	"github.com/jvbeek/pricewatch/internal/reconcile"
)

// scriptAdapter serves a fixed sequence of batches and errors.
type scriptAdapter struct {
	provider string
	batches  []adapter.Batch
	errs     []error
	calls    int
	block    chan struct{} // when set, FetchBatch blocks until closed
}

func (s *scriptAdapter) Provider() string { return s.provider }

func (s *scriptAdapter) FetchBatch(ctx context.Context, cursor string) (adapter.Batch, error) {
	if s.block != nil {
		select {
		case <-ctx.Done():
			return adapter.Batch{}, ctx.Err()
		case <-s.block:
		}
	}
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return adapter.Batch{}, s.errs[i]
	}
	if i >= len(s.batches) {
		return adapter.Batch{Done: true}, nil
	}
	return s.batches[i], nil
}

func rawRecord(localID, name string, price float64) domain.RawRecord {
	return domain.RawRecord{
		Provider:   domain.ProviderJumbo,
		LocalID:    localID,
		Name:       name,
		Brand:      "Jumbo",
		Price:      price,
		Currency:   "EUR",
		Available:  true,
		CapturedAt: time.Now().UTC(),
	}
}

type fixture struct {
	store *memory.Store
	jobs  *memory.JobRepo
	orch  *Orchestrator
}

func newOrchestrator(t *testing.T, ads ...adapter.Adapter) *fixture {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.DiscardHandler)
	obs := memory.NewObservationRepo(store)
	alerts := memory.NewAlertRepo(store)
	emitter := events.NewLogEmitter(logger)

	pipeline := reconcile.NewPipeline(
		memory.NewEntityRepo(store), obs, alerts,
		memory.NewBatchCommitter(store),
		reconcile.NewValidator(obs, 10, 3.0),
		emitter, 0.85, logger,
	)

	registry := adapter.NewRegistry()
	for _, ad := range ads {
		registry.Add(ad)
	}

	policy := &retry.Policy{
		MaxAttempts:       1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		RateLimitCeiling:  1,
		RateLimitCooldown: time.Millisecond,
	}
	cfg := config.OrchestratorConfig{
		TickInterval:  config.Duration(10 * time.Millisecond),
		MaxConcurrent: 2,
		BatchTimeout:  config.Duration(time.Second),
	}

	jobs := memory.NewJobRepo(store)
	orch := New(cfg, policy, registry, pipeline,
		memory.NewScheduleRepo(store), jobs, alerts, emitter, logger)
	return &fixture{store: store, jobs: jobs, orch: orch}
}

// waitTerminal polls until the job reaches a terminal state.
func (f *fixture) waitTerminal(t *testing.T, jobID string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		jobs, err := f.jobs.List(context.Background(), "", 50)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, j := range jobs {
			if j.ID == jobID && j.State.Terminal() {
				// Wait for the run goroutine to release the provider slot.
				for time.Now().Before(deadline) {
					if len(f.orch.Status().Active) == 0 {
						return j
					}
					time.Sleep(time.Millisecond)
				}
				return j
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job did not finish")
	return nil
}

func TestStartJob_Succeeds(t *testing.T) {
	ad := &scriptAdapter{
		provider: domain.ProviderJumbo,
		batches: []adapter.Batch{
			{Records: []domain.RawRecord{
				rawRecord("j1", "Jumbo Halfvolle Melk", 1.29),
				rawRecord("j2", "Jumbo Volkoren Brood", 1.99),
			}, NextCursor: "p2"},
			{Records: []domain.RawRecord{
				rawRecord("j3", "Jumbo Pindakaas", 2.49),
				rawRecord("j4", "Jumbo Bad Record", 0), // skipped
			}, Done: true},
		},
	}
	f := newOrchestrator(t, ad)

	job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindFullSync)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	final := f.waitTerminal(t, job.ID)
	if final.State != domain.JobStateSucceeded {
		t.Fatalf("State = %s, want succeeded (last error: %s)", final.State, final.LastError)
	}
	if final.RecordsProcessed != 3 || final.RecordsSkipped != 1 {
		t.Errorf("counters = %d processed / %d skipped, want 3/1",
			final.RecordsProcessed, final.RecordsSkipped)
	}
	if final.BatchesCommitted != 2 {
		t.Errorf("BatchesCommitted = %d, want 2", final.BatchesCommitted)
	}
	if final.StartedAt == nil || final.FinishedAt == nil {
		t.Error("missing run timestamps")
	}
}

func TestStartJob_MutualExclusion(t *testing.T) {
	block := make(chan struct{})
	ad := &scriptAdapter{provider: domain.ProviderJumbo, block: block}
	f := newOrchestrator(t, ad)

	// Race simultaneous starts for the same provider; admission must let
	// exactly one through.
	const starters = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*domain.Job
		refused  int
	)
	start := make(chan struct{})
	for range starters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindFullSync)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted = append(admitted, job)
				return
			}
			if fail, ok := domain.AsFailure(err); ok && fail.Kind == domain.FailureJobAlreadyRunning {
				refused++
				return
			}
			t.Errorf("unexpected start error: %v", err)
		}()
	}
	close(start)
	wg.Wait()

	if len(admitted) != 1 || refused != starters-1 {
		t.Fatalf("admitted %d, refused %d, want 1 and %d", len(admitted), refused, starters-1)
	}

	close(block)
	f.waitTerminal(t, admitted[0].ID)
}

func TestStartJob_UnknownProvider(t *testing.T) {
	f := newOrchestrator(t)

	_, err := f.orch.StartJob(context.Background(), "nonexistent", domain.JobKindFullSync)
	if fail, ok := domain.AsFailure(err); !ok || fail.Kind != domain.FailureProviderUnknown {
		t.Errorf("err = %v, want provider_unknown", err)
	}
}

func TestStartJob_InvalidKind(t *testing.T) {
	ad := &scriptAdapter{provider: domain.ProviderJumbo}
	f := newOrchestrator(t, ad)

	if _, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, "reindex"); err == nil {
		t.Error("invalid kind admitted")
	}
}

func TestRun_PartialFailure(t *testing.T) {
	// First batch commits, second fetch keeps failing transiently until the
	// retry budget is exhausted. The run ends partially failed.
	ad := &scriptAdapter{
		provider: domain.ProviderJumbo,
		batches: []adapter.Batch{
			{Records: []domain.RawRecord{rawRecord("j1", "Jumbo Melk", 1.29)}, NextCursor: "p2"},
		},
		errs: []error{
			nil,
			domain.NewFailure(domain.FailureTransientNetwork, "connection reset", nil),
			domain.NewFailure(domain.FailureTransientNetwork, "connection reset", nil),
			domain.NewFailure(domain.FailureTransientNetwork, "connection reset", nil),
		},
	}
	f := newOrchestrator(t, ad)

	job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindFullSync)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	final := f.waitTerminal(t, job.ID)
	if final.State != domain.JobStatePartiallyFailed {
		t.Fatalf("State = %s, want partially_failed", final.State)
	}
	if final.BatchesCommitted != 1 || final.BatchesFailed != 1 {
		t.Errorf("batches = %d committed / %d failed, want 1/1",
			final.BatchesCommitted, final.BatchesFailed)
	}
	if final.LastErrorKind != domain.FailureTransientNetwork {
		t.Errorf("LastErrorKind = %s", final.LastErrorKind)
	}

	// A partially failed run raises a warning alert.
	alerts, err := memory.NewAlertRepo(f.store).List(context.Background(), 10)
	if err != nil || len(alerts) == 0 {
		t.Fatalf("no alert raised: %v", err)
	}
	if alerts[0].Severity != domain.SeverityWarning {
		t.Errorf("alert severity = %s, want warning", alerts[0].Severity)
	}
}

func TestRun_UnknownFailureIsFatal(t *testing.T) {
	ad := &scriptAdapter{
		provider: domain.ProviderJumbo,
		errs:     []error{errors.New("wholly unexpected")},
	}
	f := newOrchestrator(t, ad)

	job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindFullSync)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	final := f.waitTerminal(t, job.ID)
	if final.State != domain.JobStateFailed {
		t.Fatalf("State = %s, want failed", final.State)
	}

	alerts, _ := memory.NewAlertRepo(f.store).List(context.Background(), 10)
	if len(alerts) == 0 || alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("want critical alert, got %+v", alerts)
	}
}

func TestStopJob_CancelsRun(t *testing.T) {
	block := make(chan struct{})
	ad := &scriptAdapter{provider: domain.ProviderJumbo, block: block}
	f := newOrchestrator(t, ad)

	job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindFullSync)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	// Give the run a moment to enter the blocking fetch.
	time.Sleep(10 * time.Millisecond)
	if !f.orch.StopJob(job.ID) {
		t.Fatal("StopJob did not find the run")
	}

	final := f.waitTerminal(t, job.ID)
	if final.State != domain.JobStateFailed {
		t.Errorf("State = %s, want failed after cancel with no commits", final.State)
	}
	if final.LastError == "" {
		t.Error("cancel left no error note")
	}
}

func TestStopJob_UnknownID(t *testing.T) {
	f := newOrchestrator(t)
	if f.orch.StopJob("no-such-job") {
		t.Error("StopJob reported success for unknown job")
	}
}

func TestValidateOnly_CommitsNothing(t *testing.T) {
	ad := &scriptAdapter{
		provider: domain.ProviderJumbo,
		batches: []adapter.Batch{
			{Records: []domain.RawRecord{rawRecord("j1", "Jumbo Melk", 1.29)}, Done: true},
		},
	}
	f := newOrchestrator(t, ad)

	job, err := f.orch.StartJob(context.Background(), domain.ProviderJumbo, domain.JobKindValidateOnly)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	final := f.waitTerminal(t, job.ID)
	if final.State != domain.JobStateSucceeded {
		t.Fatalf("State = %s, want succeeded", final.State)
	}
	if final.BatchesCommitted != 0 {
		t.Errorf("BatchesCommitted = %d, want 0", final.BatchesCommitted)
	}

	e, err := memory.NewEntityRepo(f.store).FindByKey(context.Background(), "melk|jumbo")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if e != nil {
		t.Error("validate-only run wrote to the catalog")
	}
}

func TestScheduler_TriggersDueProvider(t *testing.T) {
	ad := &scriptAdapter{
		provider: domain.ProviderJumbo,
		batches: []adapter.Batch{
			{Records: []domain.RawRecord{rawRecord("j1", "Jumbo Melk", 1.29)}, Done: true},
		},
	}
	f := newOrchestrator(t, ad)

	// A schedule whose last run is two minutes back is due for "* * * * *".
	past := time.Now().Add(-2 * time.Minute)
	schedules := memory.NewScheduleRepo(f.store)
	err := schedules.Upsert(context.Background(), &domain.ProviderSchedule{
		Provider:   domain.ProviderJumbo,
		Expression: "* * * * *",
		Timezone:   "Europe/Amsterdam",
		Active:     true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := schedules.MarkRun(context.Background(), domain.ProviderJumbo, past, past.Add(time.Minute)); err != nil {
		t.Fatalf("MarkRun: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.orch.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		jobs, _ := f.jobs.List(context.Background(), domain.ProviderJumbo, 5)
		if len(jobs) > 0 && jobs[0].State.Terminal() {
			if jobs[0].State != domain.JobStateSucceeded {
				t.Fatalf("scheduled job ended %s", jobs[0].State)
			}
			// The schedule is stamped so the next tick does not re-trigger.
			s, _ := schedules.Get(context.Background(), domain.ProviderJumbo)
			if s.LastRun == nil || !s.LastRun.After(past) {
				t.Error("schedule not marked after run")
			}
			if err := f.orch.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler never triggered the due provider")
}
