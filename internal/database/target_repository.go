package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openrounds/pricecrawl/internal/domain"
)

// ErrTargetNotFound is returned when a target id does not exist.
var ErrTargetNotFound = errors.New("scrape target not found")

// targetSelectColumns lists columns for SELECT queries on scrape_targets.
const targetSelectColumns = `id, url, canonical_url, source_id, adapter_id,
	enabled, status, robots_blocked, robots_block_count, created_by, notes,
	last_scraped_at, created_at, updated_at`

// TargetRepository handles database operations for scrape targets.
type TargetRepository struct {
	db *sqlx.DB
}

// NewTargetRepository creates a new target repository.
func NewTargetRepository(db *sqlx.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// UpsertBatch inserts targets, skipping rows whose (source_id,
// canonical_url) already exists. Returns the number of rows actually
// inserted. The whole batch runs in one transaction so a discovery run
// commits all-or-nothing.
func (r *TargetRepository) UpsertBatch(ctx context.Context, targets []domain.ScrapeTarget) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO scrape_targets
			(id, url, canonical_url, source_id, adapter_id, enabled, status,
			 robots_blocked, robots_block_count, created_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (source_id, canonical_url) DO NOTHING
	`

	inserted := 0
	for i := range targets {
		target := &targets[i]
		if target.ID == "" {
			target.ID = uuid.NewString()
		}
		if target.Status == "" {
			target.Status = domain.TargetStatusActive
		}

		result, execErr := tx.ExecContext(ctx, query,
			target.ID, target.URL, target.CanonicalURL, target.SourceID,
			target.AdapterID, target.Enabled, target.Status,
			target.RobotsBlocked, target.RobotsBlockCount,
			target.CreatedBy, target.Notes,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert target %s: %w", target.CanonicalURL, execErr)
		}

		n, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", affectedErr)
		}
		inserted += int(n)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("failed to commit target batch: %w", commitErr)
	}

	return inserted, nil
}

// GetByID returns one target.
func (r *TargetRepository) GetByID(ctx context.Context, id string) (*domain.ScrapeTarget, error) {
	query := `SELECT ` + targetSelectColumns + ` FROM scrape_targets WHERE id = $1`

	var target domain.ScrapeTarget
	if err := r.db.GetContext(ctx, &target, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
		}
		return nil, fmt.Errorf("failed to select target: %w", err)
	}

	return &target, nil
}

// ListRecent returns the most recently updated active targets for a source.
func (r *TargetRepository) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ScrapeTarget, error) {
	query := `SELECT ` + targetSelectColumns + ` FROM scrape_targets
		WHERE source_id = $1 AND status = $2 AND enabled
		ORDER BY updated_at DESC
		LIMIT $3`

	var targets []domain.ScrapeTarget
	if err := r.db.SelectContext(ctx, &targets, query, sourceID, domain.TargetStatusActive, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent targets: %w", err)
	}

	return targets, nil
}

// ListRandom returns up to limit active targets for a source, uniformly
// sampled without replacement across the full population.
func (r *TargetRepository) ListRandom(ctx context.Context, sourceID string, limit int) ([]domain.ScrapeTarget, error) {
	query := `SELECT ` + targetSelectColumns + ` FROM scrape_targets
		WHERE source_id = $1 AND status = $2 AND enabled
		ORDER BY random()
		LIMIT $3`

	var targets []domain.ScrapeTarget
	if err := r.db.SelectContext(ctx, &targets, query, sourceID, domain.TargetStatusActive, limit); err != nil {
		return nil, fmt.Errorf("failed to sample targets: %w", err)
	}

	return targets, nil
}

// CountBySource returns the number of targets for a source regardless of status.
func (r *TargetRepository) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM scrape_targets WHERE source_id = $1`, sourceID); err != nil {
		return 0, fmt.Errorf("failed to count targets: %w", err)
	}

	return count, nil
}

// MarkScraped records a successful scrape and clears the robots-block streak.
func (r *TargetRepository) MarkScraped(ctx context.Context, id string) error {
	query := `UPDATE scrape_targets
		SET last_scraped_at = NOW(), robots_blocked = FALSE,
			robots_block_count = 0, updated_at = NOW()
		WHERE id = $1`

	return r.updateTarget(ctx, id, query)
}

// MarkRobotsBlocked increments the consecutive robots-block counter and,
// once the streak reaches disableAfter, flips the target to DISABLED. This
// is the skip-to-disable feedback loop: persistently blocked targets stop
// being scheduled without operator intervention.
func (r *TargetRepository) MarkRobotsBlocked(ctx context.Context, id string, disableAfter int) error {
	query := `UPDATE scrape_targets
		SET robots_blocked = TRUE,
			robots_block_count = robots_block_count + 1,
			status = CASE WHEN robots_block_count + 1 >= $2 THEN $3 ELSE status END,
			updated_at = NOW()
		WHERE id = $1`

	return r.updateTarget(ctx, id, query, disableAfter, domain.TargetStatusDisabled)
}

// Disable soft-disables a target. Targets are never hard-deleted.
func (r *TargetRepository) Disable(ctx context.Context, id, note string) error {
	query := `UPDATE scrape_targets
		SET status = $2, enabled = FALSE,
			notes = COALESCE(notes || E'\n', '') || $3,
			updated_at = NOW()
		WHERE id = $1`

	return r.updateTarget(ctx, id, query, domain.TargetStatusDisabled, note)
}

// updateTarget runs an UPDATE keyed by target id, with id bound as $1, and
// maps a zero-row result to ErrTargetNotFound.
func (r *TargetRepository) updateTarget(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}

	return nil
}

// ListBySource returns all targets for a source ordered by canonical URL.
func (r *TargetRepository) ListBySource(ctx context.Context, sourceID string) ([]domain.ScrapeTarget, error) {
	query := `SELECT ` + targetSelectColumns + ` FROM scrape_targets
		WHERE source_id = $1 ORDER BY canonical_url`

	var targets []domain.ScrapeTarget
	if err := r.db.SelectContext(ctx, &targets, query, sourceID); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	return targets, nil
}
