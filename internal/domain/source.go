package domain

import "time"

// Source is a retailer's ingestion endpoint together with its compliance gates.
// A scrape may proceed only if ScrapeOK returns true; the gate is enforced at
// the dry-run CLI, the scheduler, and the visibility recompute independently.
type Source struct {
	ID        string `db:"id"         json:"id"`
	Name      string `db:"name"       json:"name"`
	BaseURL   string `db:"base_url"   json:"base_url"`
	AdapterID string `db:"adapter_id" json:"adapter_id"`

	// Compliance gates. All four must be satisfied for scraping.
	ScrapeEnabled   bool       `db:"scrape_enabled"   json:"scrape_enabled"`
	RobotsCompliant bool       `db:"robots_compliant" json:"robots_compliant"`
	ToSReviewedAt   *time.Time `db:"tos_reviewed_at"  json:"tos_reviewed_at,omitempty"`
	ToSApprovedBy   *string    `db:"tos_approved_by"  json:"tos_approved_by,omitempty"`

	// Adapter-level operational flags.
	AdapterEnabled  bool `db:"adapter_enabled"  json:"adapter_enabled"`
	IngestionPaused bool `db:"ingestion_paused" json:"ingestion_paused"`

	// MaxDiscoveryURLs caps a single discovery run for this source.
	MaxDiscoveryURLs int `db:"max_discovery_urls" json:"max_discovery_urls"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ComplianceFailure names the first unsatisfied compliance gate, or "" if all
// gates pass. The order matches the gate list in the source record.
func (s *Source) ComplianceFailure() string {
	switch {
	case !s.ScrapeEnabled:
		return "scrape_enabled is false"
	case !s.RobotsCompliant:
		return "robots_compliant is false"
	case s.ToSReviewedAt == nil:
		return "tos_reviewed_at is not set"
	case s.ToSApprovedBy == nil || *s.ToSApprovedBy == "":
		return "tos_approved_by is not set"
	case !s.AdapterEnabled:
		return "adapter is disabled"
	case s.IngestionPaused:
		return "ingestion is paused"
	}

	return ""
}

// ScrapeOK reports whether every compliance gate is satisfied.
func (s *Source) ScrapeOK() bool {
	return s.ComplianceFailure() == ""
}
