package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// AlertRepo implements catalog.AlertRepository using PostgreSQL.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new PostgreSQL alert repository.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

type alertRow struct {
	ID        string         `db:"id"`
	Severity  string         `db:"severity"`
	Component string         `db:"component"`
	Message   string         `db:"message"`
	JobID     sql.NullString `db:"job_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// Add persists one alert.
func (r *AlertRepo) Add(ctx context.Context, alert *domain.Alert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, severity, component, message, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		alert.ID, string(alert.Severity), alert.Component, alert.Message,
		nullIfEmpty(alert.JobID), alert.CreatedAt)
	if err != nil {
		return storageErr("failed to add alert", err)
	}
	return nil
}

// List returns alerts newest first.
func (r *AlertRepo) List(ctx context.Context, limit int) ([]*domain.Alert, error) {
	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, severity, component, message, job_id, created_at
		 FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("failed to list alerts", err)
	}
	out := make([]*domain.Alert, len(rows))
	for i, row := range rows {
		out[i] = &domain.Alert{
			ID:        row.ID,
			Severity:  domain.Severity(row.Severity),
			Component: row.Component,
			Message:   row.Message,
			JobID:     row.JobID.String,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

// PruneAlertsBefore deletes alerts created before the cutoff and returns
// the number of rows removed.
func (r *AlertRepo) PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, storageErr("failed to prune alerts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
