package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// ScheduleRepo implements catalog.ScheduleRepository using PostgreSQL.
type ScheduleRepo struct {
	db *DB
}

// NewScheduleRepo creates a new PostgreSQL schedule repository.
func NewScheduleRepo(db *DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

type scheduleRow struct {
	Provider   string     `db:"provider"`
	Expression string     `db:"expression"`
	Timezone   string     `db:"timezone"`
	Active     bool       `db:"active"`
	LastRunAt  *time.Time `db:"last_run_at"`
	NextRunAt  *time.Time `db:"next_run_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r scheduleRow) toDomain() *domain.ProviderSchedule {
	return &domain.ProviderSchedule{
		Provider:   r.Provider,
		Expression: r.Expression,
		Timezone:   r.Timezone,
		Active:     r.Active,
		LastRun:    r.LastRunAt,
		NextRun:    r.NextRunAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// GetAll returns all provider schedules ordered by provider name.
func (r *ScheduleRepo) GetAll(ctx context.Context) ([]*domain.ProviderSchedule, error) {
	var rows []scheduleRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT provider, expression, timezone, active, last_run_at, next_run_at, updated_at
		 FROM provider_schedules ORDER BY provider`)
	if err != nil {
		return nil, storageErr("failed to list schedules", err)
	}
	out := make([]*domain.ProviderSchedule, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Get returns the schedule for one provider, or nil.
func (r *ScheduleRepo) Get(ctx context.Context, provider string) (*domain.ProviderSchedule, error) {
	var row scheduleRow
	err := r.db.GetContext(ctx, &row,
		`SELECT provider, expression, timezone, active, last_run_at, next_run_at, updated_at
		 FROM provider_schedules WHERE provider = $1`, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, storageErr("failed to get schedule", err)
	}
	return row.toDomain(), nil
}

// Upsert inserts or replaces a provider schedule. Run bookkeeping columns
// are preserved on update.
func (r *ScheduleRepo) Upsert(ctx context.Context, s *domain.ProviderSchedule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_schedules (provider, expression, timezone, active, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (provider) DO UPDATE SET
		   expression = EXCLUDED.expression,
		   timezone   = EXCLUDED.timezone,
		   active     = EXCLUDED.active,
		   updated_at = now()`,
		s.Provider, s.Expression, s.Timezone, s.Active)
	if err != nil {
		return storageErr("failed to upsert schedule", err)
	}
	return nil
}

// MarkRun records a finished run and the computed next fire time.
func (r *ScheduleRepo) MarkRun(ctx context.Context, provider string, lastRun, nextRun time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE provider_schedules
		 SET last_run_at = $2, next_run_at = $3, updated_at = now()
		 WHERE provider = $1`, provider, lastRun, nextRun)
	if err != nil {
		return storageErr("failed to mark schedule run", err)
	}
	return nil
}
