// Package control assembles the application and exposes the HTTP control
// surface.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/catalog/memory"
	"github.com/jvbeek/pricewatch/internal/catalog/postgres"
	"github.com/jvbeek/pricewatch/internal/collect/adapter"
	"github.com/jvbeek/pricewatch/internal/collect/orchestrator"
	"github.com/jvbeek/pricewatch/internal/collect/retry"
	"github.com/jvbeek/pricewatch/internal/core/config"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/core/schedule"
	"github.com/jvbeek/pricewatch/internal/core/worker"
	"github.com/jvbeek/pricewatch/internal/events"
	"github.com/jvbeek/pricewatch/internal/reconcile"
)

// Service is the assembled application: storage, adapters, the
// orchestrator, and the control server.
type Service struct {
	cfg       config.AppConfig
	orch      *orchestrator.Orchestrator
	server    *Server
	schedules catalog.ScheduleRepository
	jobs      catalog.JobRepository
	alerts    catalog.AlertRepository
	registry  *adapter.Registry
	emitter   events.Emitter
	pruner    *worker.Pruner
	db        *postgres.DB
	log       *slog.Logger
}

// NewService wires all dependencies from configuration. PostgreSQL and
// Redis are optional; without them the in-memory store and the log
// emitter serve the same contracts.
func NewService(cfg config.AppConfig, logger *slog.Logger) (*Service, error) {
	var (
		db           *postgres.DB
		entities     catalog.EntityRepository
		observations catalog.ObservationRepository
		schedules    catalog.ScheduleRepository
		jobs         catalog.JobRepository
		alerts       catalog.AlertRepository
		committer    catalog.BatchCommitter
		historyStore worker.HistoryStore
		alertStore   worker.AlertStore
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		entities = postgres.NewEntityRepo(db)
		obsRepo := postgres.NewObservationRepo(db)
		alertRepo := postgres.NewAlertRepo(db)
		observations, historyStore = obsRepo, obsRepo
		alerts, alertStore = alertRepo, alertRepo
		schedules = postgres.NewScheduleRepo(db)
		jobs = postgres.NewJobRepo(db)
		committer = postgres.NewBatchCommitter(db)
		logger.Info("using PostgreSQL storage")
	} else {
		store := memory.NewStore()
		entities = memory.NewEntityRepo(store)
		obsRepo := memory.NewObservationRepo(store)
		alertRepo := memory.NewAlertRepo(store)
		observations, historyStore = obsRepo, obsRepo
		alerts, alertStore = alertRepo, alertRepo
		schedules = memory.NewScheduleRepo(store)
		jobs = memory.NewJobRepo(store)
		committer = memory.NewBatchCommitter(store)
		logger.Info("using memory storage")
	}

	var emitter events.Emitter
	if cfg.Redis.URL != "" {
		var err error
		emitter, err = events.NewRedisEmitter(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init event emitter: %w", err)
		}
		logger.Info("publishing events to redis")
	} else {
		emitter = events.NewLogEmitter(logger)
		logger.Info("publishing events to log")
	}

	registry := adapter.NewRegistry()
	for _, p := range cfg.Providers {
		feed := adapter.NewFeedAdapter(p.Name, p.FeedURL, p.BatchSize, p.RequestTimeout.Std())
		registry.Add(adapter.NewThrottled(feed, p.MinRequestInterval.Std(), p.RequestTimeout.Std()))
	}

	pipeline := reconcile.NewPipeline(
		entities, observations, alerts, committer,
		reconcile.NewValidator(observations, cfg.Reconcile.MinHistoryPoints, cfg.Reconcile.SpreadMultiplier),
		emitter, cfg.Reconcile.SimilarityThreshold, logger,
	)

	policy := &retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelay:      cfg.Retry.InitialDelay.Std(),
		MaxDelay:          cfg.Retry.MaxDelay.Std(),
		RateLimitCeiling:  cfg.Retry.RateLimitCeiling,
		RateLimitCooldown: cfg.Retry.RateLimitCooldown.Std(),
	}

	orch := orchestrator.New(cfg.Orchestrator, policy, registry, pipeline,
		schedules, jobs, alerts, emitter, logger)

	svc := &Service{
		cfg:       cfg,
		orch:      orch,
		schedules: schedules,
		jobs:      jobs,
		alerts:    alerts,
		registry:  registry,
		emitter:   emitter,
		pruner:    worker.NewPruner(cfg.Retention, historyStore, alertStore, logger),
		db:        db,
		log:       logger,
	}
	svc.server = NewServer(svc, cfg.Server.Port, logger)
	return svc, nil
}

// Start seeds configured schedules, then runs the scheduler and the
// control server until the context is canceled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.seedSchedules(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.server.Start(); err != nil {
			s.log.Error("control server failed", "error", err)
		}
	}()

	go func() {
		if err := s.orch.Start(ctx); err != nil {
			s.log.Error("orchestrator failed", "error", err)
		}
	}()

	go s.pruner.Start(ctx)

	<-ctx.Done()
	return nil
}

// Stop shuts the service down: scheduler first so no new runs start, then
// in-flight runs, then the server and connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("stopping service")

	if err := s.orch.Shutdown(ctx); err != nil {
		s.log.Warn("orchestrator shutdown incomplete", "error", err)
	}
	if err := s.emitter.Close(); err != nil {
		s.log.Warn("failed to close emitter", "error", err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("failed to close db", "error", err)
		}
	}
	return s.server.Stop(ctx)
}

// seedSchedules upserts the configured provider schedules. An invalid
// expression in config is a boot error, not a runtime surprise.
func (s *Service) seedSchedules(ctx context.Context) error {
	for _, p := range s.cfg.Providers {
		if p.Schedule == "" {
			continue
		}
		if _, err := schedule.Parse(p.Schedule, p.Timezone); err != nil {
			return domain.NewFailure(domain.FailureInvalidSchedule,
				fmt.Sprintf("provider %s has invalid schedule %q", p.Name, p.Schedule), err)
		}
		err := s.schedules.Upsert(ctx, &domain.ProviderSchedule{
			Provider:   p.Name,
			Expression: p.Schedule,
			Timezone:   p.Timezone,
			Active:     p.Active,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to seed schedule for %s: %w", p.Name, err)
		}
	}
	return nil
}
