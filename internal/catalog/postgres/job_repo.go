package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// JobRepo implements catalog.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

type jobRow struct {
	ID               string     `db:"id"`
	Provider         string     `db:"provider"`
	Kind             string     `db:"kind"`
	State            string     `db:"state"`
	CreatedAt        time.Time  `db:"created_at"`
	StartedAt        *time.Time `db:"started_at"`
	FinishedAt       *time.Time `db:"finished_at"`
	RecordsProcessed int        `db:"records_processed"`
	RecordsSkipped   int        `db:"records_skipped"`
	BatchesCommitted int        `db:"batches_committed"`
	BatchesFailed    int        `db:"batches_failed"`
	ErrorCount       int        `db:"error_count"`
	LastErrorKind    string     `db:"last_error_kind"`
	LastError        string     `db:"last_error"`
}

func (r jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:               r.ID,
		Provider:         r.Provider,
		Kind:             domain.JobKind(r.Kind),
		State:            domain.JobState(r.State),
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		RecordsProcessed: r.RecordsProcessed,
		RecordsSkipped:   r.RecordsSkipped,
		BatchesCommitted: r.BatchesCommitted,
		BatchesFailed:    r.BatchesFailed,
		ErrorCount:       r.ErrorCount,
		LastErrorKind:    domain.FailureKind(r.LastErrorKind),
		LastError:        r.LastError,
	}
}

// Save upserts a job snapshot by ID.
func (r *JobRepo) Save(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (
		   id, provider, kind, state, created_at, started_at, finished_at,
		   records_processed, records_skipped, batches_committed, batches_failed,
		   error_count, last_error_kind, last_error
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   state             = EXCLUDED.state,
		   started_at        = EXCLUDED.started_at,
		   finished_at       = EXCLUDED.finished_at,
		   records_processed = EXCLUDED.records_processed,
		   records_skipped   = EXCLUDED.records_skipped,
		   batches_committed = EXCLUDED.batches_committed,
		   batches_failed    = EXCLUDED.batches_failed,
		   error_count       = EXCLUDED.error_count,
		   last_error_kind   = EXCLUDED.last_error_kind,
		   last_error        = EXCLUDED.last_error`,
		job.ID, job.Provider, string(job.Kind), string(job.State),
		job.CreatedAt, job.StartedAt, job.FinishedAt,
		job.RecordsProcessed, job.RecordsSkipped,
		job.BatchesCommitted, job.BatchesFailed,
		job.ErrorCount, string(job.LastErrorKind), job.LastError)
	if err != nil {
		return storageErr("failed to save job", err)
	}
	return nil
}

// List returns jobs newest first, optionally filtered by provider.
func (r *JobRepo) List(ctx context.Context, provider string, limit int) ([]*domain.Job, error) {
	const columns = `id, provider, kind, state, created_at, started_at, finished_at,
		 records_processed, records_skipped, batches_committed, batches_failed,
		 error_count, last_error_kind, last_error`

	var (
		rows []jobRow
		err  error
	)
	if provider != "" {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+columns+` FROM jobs WHERE provider = $1 ORDER BY created_at DESC LIMIT $2`,
			provider, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+columns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, storageErr("failed to list jobs", err)
	}
	out := make([]*domain.Job, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// nullIfEmpty maps an empty job reference to NULL for the alerts table.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
