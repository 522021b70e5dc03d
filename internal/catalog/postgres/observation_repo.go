package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// ObservationRepo implements catalog.ObservationRepository using PostgreSQL.
type ObservationRepo struct {
	db *DB
}

// NewObservationRepo creates a new PostgreSQL observation repository.
func NewObservationRepo(db *DB) *ObservationRepo {
	return &ObservationRepo{db: db}
}

type historyRow struct {
	Value      float64   `db:"value"`
	CapturedAt time.Time `db:"captured_at"`
}

// Latest returns the most recent committed observation for an
// entity/provider pair, or nil when none exists.
func (r *ObservationRepo) Latest(ctx context.Context, entityID int64, provider string) (*domain.HistoryPoint, error) {
	var row historyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT value, captured_at FROM latest_observations
		 WHERE entity_id = $1 AND provider = $2`, entityID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to get latest observation", err)
	}
	return &domain.HistoryPoint{Value: row.Value, CapturedAt: row.CapturedAt}, nil
}

// TrailingHistory returns up to limit history points, newest first.
func (r *ObservationRepo) TrailingHistory(ctx context.Context, entityID int64, provider string, limit int) ([]domain.HistoryPoint, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT value, captured_at FROM price_history
		 WHERE entity_id = $1 AND provider = $2
		 ORDER BY captured_at DESC LIMIT $3`, entityID, provider, limit)
	if err != nil {
		return nil, storageErr("failed to get trailing history", err)
	}
	out := make([]domain.HistoryPoint, len(rows))
	for i, row := range rows {
		out[i] = domain.HistoryPoint{Value: row.Value, CapturedAt: row.CapturedAt}
	}
	return out, nil
}

// PruneHistoryBefore deletes history rows captured before the cutoff and
// returns the number of rows removed. Latest observations are untouched.
func (r *ObservationRepo) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM price_history WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, storageErr("failed to prune price history", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
