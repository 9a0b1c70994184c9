package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openrounds/pricecrawl/internal/domain"
)

// ErrSourceNotFound is returned when a source id does not exist.
var ErrSourceNotFound = errors.New("source not found")

// sourceSelectColumns lists columns for SELECT queries on sources.
const sourceSelectColumns = `id, name, base_url, adapter_id, scrape_enabled,
	robots_compliant, tos_reviewed_at, tos_approved_by, adapter_enabled,
	ingestion_paused, max_discovery_urls, created_at, updated_at`

// SourceRepository reads retailer sources and their compliance gates. The
// pipeline never mutates compliance fields; they are owned by the admin
// surface.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// GetByID returns one source.
func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE id = $1`

	var source domain.Source
	if err := r.db.GetContext(ctx, &source, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return nil, fmt.Errorf("failed to select source: %w", err)
	}

	return &source, nil
}

// GetByDomain returns the source whose base URL host matches the domain.
func (r *SourceRepository) GetByDomain(ctx context.Context, domainName string) (*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources
		WHERE regexp_replace(lower(split_part(split_part(base_url, '://', 2), '/', 1)), '^www\.', '') = $1`

	var source domain.Source
	if err := r.db.GetContext(ctx, &source, query, domainName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: domain %s", ErrSourceNotFound, domainName)
		}
		return nil, fmt.Errorf("failed to select source by domain: %w", err)
	}

	return &source, nil
}

// List returns all sources ordered by name.
func (r *SourceRepository) List(ctx context.Context) ([]domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources ORDER BY name`

	var sources []domain.Source
	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	return sources, nil
}
