package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jvbeek/pricewatch/internal/catalog"
	"github.com/jvbeek/pricewatch/internal/metrics"
)

// UnitOfWork bundles all writes of one reconciled batch into a single
// database transaction, ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sql.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("failed to begin transaction", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		return storageErr("failed to commit transaction", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// upsertEntity writes one entity keyed by canonical key and returns its id.
// Barcode and unit columns only ever gain information; an empty incoming
// value never clears a populated column.
func (u *UnitOfWork) upsertEntity(ctx context.Context, ew *catalog.EntityWrite) (int64, error) {
	var id int64
	err := u.tx.QueryRowContext(ctx,
		`INSERT INTO entities (canonical_key, canonical_name, brand, barcode, unit_type, unit_size)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (canonical_key) DO UPDATE SET
		   canonical_name = EXCLUDED.canonical_name,
		   brand          = EXCLUDED.brand,
		   barcode        = CASE WHEN EXCLUDED.barcode <> '' THEN EXCLUDED.barcode ELSE entities.barcode END,
		   unit_type      = CASE WHEN EXCLUDED.unit_type <> '' THEN EXCLUDED.unit_type ELSE entities.unit_type END,
		   unit_size      = CASE WHEN EXCLUDED.unit_size > 0 THEN EXCLUDED.unit_size ELSE entities.unit_size END,
		   updated_at     = now()
		 RETURNING id`,
		ew.Key, ew.CanonicalName, ew.Brand, ew.Barcode, ew.UnitType, ew.UnitSize).Scan(&id)
	if err != nil {
		return 0, storageErr("failed to upsert entity", err)
	}
	return id, nil
}

// saveLinks records provider-local identifiers for an entity.
func (u *UnitOfWork) saveLinks(ctx context.Context, entityID int64, links []catalog.ProviderLink) error {
	for _, link := range links {
		_, err := u.tx.ExecContext(ctx,
			`INSERT INTO entity_providers (entity_id, provider, local_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			entityID, link.Provider, link.LocalID)
		if err != nil {
			return storageErr("failed to save provider link", err)
		}
	}
	return nil
}

// saveHistory inserts history rows in one multi-row statement. The primary
// key on (entity_id, provider, captured_at) makes re-inserts no-ops.
func (u *UnitOfWork) saveHistory(ctx context.Context, entityIDs []int64, providers []string, values []float64, capturedAts []time.Time) error {
	if len(entityIDs) == 0 {
		return nil
	}

	metrics.DBBatchSize.WithLabelValues("save_history").Observe(float64(len(entityIDs)))

	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO price_history (entity_id, provider, value, captured_at)
		 SELECT * FROM unnest($1::bigint[], $2::text[], $3::double precision[], $4::timestamptz[])
		 ON CONFLICT (entity_id, provider, captured_at) DO NOTHING`,
		pq.Array(entityIDs), pq.Array(providers), pq.Array(values), pq.Array(capturedAts))
	if err != nil {
		return storageErr("failed to save price history", err)
	}
	return nil
}

// BatchCommitter implements catalog.BatchCommitter on PostgreSQL.
type BatchCommitter struct {
	db *DB
}

// NewBatchCommitter creates a transactional batch committer.
func NewBatchCommitter(db *DB) *BatchCommitter {
	return &BatchCommitter{db: db}
}

// CommitBatch applies one WriteSet in a single transaction. Entities are
// upserted by canonical key, latest observations by (entity, provider), and
// history rows are keyed by capture time, so committing the same batch twice
// leaves the catalog unchanged.
func (c *BatchCommitter) CommitBatch(ctx context.Context, ws *catalog.WriteSet) error {
	if ws.Empty() {
		return nil
	}

	uow, err := c.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback() }()

	ids := make(map[string]int64, len(ws.Entities))
	for _, ew := range ws.Entities {
		id, err := uow.upsertEntity(ctx, ew)
		if err != nil {
			return err
		}
		ids[ew.Key] = id
		if err := uow.saveLinks(ctx, id, ew.Links); err != nil {
			return err
		}
	}

	var (
		histIDs       []int64
		histProviders []string
		histValues    []float64
		histTimes     []time.Time
	)
	for _, obs := range ws.Observations {
		id, ok := ids[obs.EntityKey]
		if !ok {
			// Observation against an entity not written in this batch:
			// resolve the id from the catalog inside the transaction.
			err := uow.tx.QueryRowContext(ctx,
				`SELECT id FROM entities WHERE canonical_key = $1`, obs.EntityKey).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return storageErr("failed to resolve observation entity", err)
			}
			ids[obs.EntityKey] = id
		}
		obs.EntityID = id

		_, err := uow.tx.ExecContext(ctx,
			`INSERT INTO latest_observations (
			   entity_id, provider, value, prior_value, change_pct,
			   promotion, discount_pct, outlier, confidence, captured_at
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (entity_id, provider) DO UPDATE SET
			   value        = EXCLUDED.value,
			   prior_value  = EXCLUDED.prior_value,
			   change_pct   = EXCLUDED.change_pct,
			   promotion    = EXCLUDED.promotion,
			   discount_pct = EXCLUDED.discount_pct,
			   outlier      = EXCLUDED.outlier,
			   confidence   = EXCLUDED.confidence,
			   captured_at  = EXCLUDED.captured_at`,
			id, obs.Provider, obs.Value, obs.PriorValue, obs.ChangePct,
			obs.Promotion, obs.DiscountPct, obs.Outlier, obs.Confidence, obs.CapturedAt)
		if err != nil {
			return storageErr("failed to upsert latest observation", err)
		}

		histIDs = append(histIDs, id)
		histProviders = append(histProviders, obs.Provider)
		histValues = append(histValues, obs.Value)
		histTimes = append(histTimes, obs.CapturedAt)
	}

	if err := uow.saveHistory(ctx, histIDs, histProviders, histValues, histTimes); err != nil {
		return err
	}

	return uow.Commit()
}
