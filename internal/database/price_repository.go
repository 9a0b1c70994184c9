package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openrounds/pricecrawl/internal/domain"
)

// priceSelectColumns lists columns for SELECT queries on prices.
const priceSelectColumns = `id, source_id, product_id, price_cents, currency,
	ingestion_run_type, ingestion_run_id, observed_at, visible, created_at, updated_at`

// PriceRepository handles database operations for ingested prices.
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// ListByRunType returns prices with the given ingestion run type, optionally
// scoped to one source (empty sourceID means all sources).
func (r *PriceRepository) ListByRunType(
	ctx context.Context,
	runType string,
	sourceID string,
) ([]domain.Price, error) {
	query := `SELECT ` + priceSelectColumns + ` FROM prices WHERE ingestion_run_type = $1`
	args := []any{runType}

	if sourceID != "" {
		query += ` AND source_id = $2`
		args = append(args, sourceID)
	}

	var prices []domain.Price
	if err := r.db.SelectContext(ctx, &prices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}

	return prices, nil
}

// SetVisibility updates the visible flag for a batch of price ids.
func (r *PriceRepository) SetVisibility(ctx context.Context, ids []string, visible bool) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE prices SET visible = $1, updated_at = NOW() WHERE id = ANY($2)`

	if _, err := r.db.ExecContext(ctx, query, visible, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update price visibility: %w", err)
	}

	return nil
}

// InsertBatch inserts prices from a scrape run.
func (r *PriceRepository) InsertBatch(ctx context.Context, prices []domain.Price) error {
	if len(prices) == 0 {
		return nil
	}

	query := `
		INSERT INTO prices
			(id, source_id, product_id, price_cents, currency,
			 ingestion_run_type, ingestion_run_id, observed_at, visible, created_at, updated_at)
		VALUES (:id, :source_id, :product_id, :price_cents, :currency,
			:ingestion_run_type, :ingestion_run_id, :observed_at, :visible, NOW(), NOW())
	`

	if _, err := r.db.NamedExecContext(ctx, query, prices); err != nil {
		return fmt.Errorf("failed to insert prices: %w", err)
	}

	return nil
}
