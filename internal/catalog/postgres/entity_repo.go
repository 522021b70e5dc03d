package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// EntityRepo implements catalog.EntityRepository using PostgreSQL.
type EntityRepo struct {
	db *DB
}

// NewEntityRepo creates a new PostgreSQL entity repository.
func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

type entityRow struct {
	ID            int64     `db:"id"`
	CanonicalKey  string    `db:"canonical_key"`
	CanonicalName string    `db:"canonical_name"`
	Brand         string    `db:"brand"`
	Barcode       string    `db:"barcode"`
	UnitType      string    `db:"unit_type"`
	UnitSize      float64   `db:"unit_size"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r entityRow) toDomain() *domain.CatalogEntity {
	return &domain.CatalogEntity{
		ID:            r.ID,
		Key:           r.CanonicalKey,
		CanonicalName: r.CanonicalName,
		Brand:         r.Brand,
		Barcode:       r.Barcode,
		UnitType:      r.UnitType,
		UnitSize:      r.UnitSize,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const entityColumns = `id, canonical_key, canonical_name, brand, barcode, unit_type, unit_size, created_at, updated_at`

// FindByKey returns the entity with the given canonical key, or nil.
func (r *EntityRepo) FindByKey(ctx context.Context, key string) (*domain.CatalogEntity, error) {
	var row entityRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+entityColumns+` FROM entities WHERE canonical_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, storageErr("failed to find entity by key", err)
	}
	return row.toDomain(), nil
}

// FindByBarcode returns the entity carrying the barcode, or nil.
func (r *EntityRepo) FindByBarcode(ctx context.Context, barcode string) (*domain.CatalogEntity, error) {
	var row entityRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+entityColumns+` FROM entities WHERE barcode = $1 ORDER BY id LIMIT 1`, barcode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to find entity by barcode", err)
	}
	return row.toDomain(), nil
}

// CandidatesByBrand returns entities sharing a brand for similarity scoring.
func (r *EntityRepo) CandidatesByBrand(ctx context.Context, brand string, limit int) ([]*domain.CatalogEntity, error) {
	var rows []entityRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+entityColumns+` FROM entities WHERE lower(brand) = lower($1) ORDER BY id LIMIT $2`,
		brand, limit)
	if err != nil {
		return nil, storageErr("failed to list brand candidates", err)
	}
	out := make([]*domain.CatalogEntity, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
