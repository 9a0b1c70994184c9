// Package domain defines the core entities shared across the ingestion pipeline.
package domain

import "time"

// ScrapeTarget status constants.
const (
	TargetStatusActive   = "ACTIVE"
	TargetStatusDisabled = "DISABLED"
)

// ScrapeTarget origin constants, recorded as creation provenance.
const (
	TargetCreatedByDiscovery = "discovery"
	TargetCreatedByImport    = "import"
	TargetCreatedByManual    = "manual"
)

// ScrapeTarget is a candidate or committed product URL to crawl.
// The canonical URL is the deduplication key, unique per source.
// Targets are never hard-deleted; they are disabled via Status.
type ScrapeTarget struct {
	ID           string `db:"id"            json:"id"`
	URL          string `db:"url"           json:"url"`
	CanonicalURL string `db:"canonical_url" json:"canonical_url"`
	SourceID     string `db:"source_id"     json:"source_id"`
	AdapterID    string `db:"adapter_id"    json:"adapter_id"`

	Enabled       bool   `db:"enabled"        json:"enabled"`
	Status        string `db:"status"         json:"status"`
	RobotsBlocked bool   `db:"robots_blocked" json:"robots_blocked"`

	// Consecutive robots-blocked runs; feeds the skip-to-disable loop.
	RobotsBlockCount int `db:"robots_block_count" json:"robots_block_count"`

	CreatedBy string  `db:"created_by" json:"created_by"`
	Notes     *string `db:"notes"      json:"notes,omitempty"`

	LastScrapedAt *time.Time `db:"last_scraped_at" json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"      json:"updated_at"`
}
