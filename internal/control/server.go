package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/core/schedule"
)

const defaultListLimit = 20

// Server is the HTTP control surface: job admission, status, schedule
// management, health, and metrics.
type Server struct {
	svc  *Service
	srv  *http.Server
	log  *slog.Logger
	port int
}

// NewServer builds the control server and its routes.
func NewServer(svc *Service, port int, logger *slog.Logger) *Server {
	s := &Server{svc: svc, port: port, log: logger.With("component", "control")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleStartJob)
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs/{id}/stop", s.handleStopJob)
		r.Get("/status", s.handleStatus)
		r.Get("/schedules", s.handleListSchedules)
		r.Put("/schedules/{provider}", s.handleUpsertSchedule)
		r.Get("/alerts", s.handleListAlerts)
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start blocks serving HTTP until the server is stopped.
func (s *Server) Start() error {
	s.log.Info("control server listening", "port", s.port)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if s.svc.db != nil {
		if err := s.svc.db.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

type startJobRequest struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Kind == "" {
		req.Kind = string(domain.JobKindFullSync)
	}
	kind := domain.JobKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job kind %q", req.Kind))
		return
	}

	job, err := s.svc.orch.StartJob(r.Context(), req.Provider, kind)
	if err != nil {
		if f, ok := domain.AsFailure(err); ok {
			switch f.Kind {
			case domain.FailureProviderUnknown:
				writeError(w, http.StatusNotFound, f.Message)
				return
			case domain.FailureJobAlreadyRunning:
				writeError(w, http.StatusConflict, f.Message)
				return
			}
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if !s.svc.orch.StopJob(jobID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no running job %s", jobID))
		return
	}
	// Cancellation is cooperative; the run reaches a terminal state on its own.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	limit := queryInt(r, "limit", defaultListLimit)

	jobs, err := s.svc.jobs.List(r.Context(), provider, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.svc.schedules.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orchestrator": s.svc.orch.Status(),
		"providers":    s.svc.registry.Providers(),
		"schedules":    schedules,
	})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.svc.schedules.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

type upsertScheduleRequest struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
	Active     *bool  `json:"active"`
}

func (s *Server) handleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	var req upsertScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "Europe/Amsterdam"
	}
	if _, err := schedule.Parse(req.Expression, req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid schedule: %v", err))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	sched := &domain.ProviderSchedule{
		Provider:   provider,
		Expression: req.Expression,
		Timezone:   req.Timezone,
		Active:     active,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.svc.schedules.Upsert(r.Context(), sched); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	alerts, err := s.svc.alerts.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
