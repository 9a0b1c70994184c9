package domain

import "time"

// Ingestion run types recorded as price provenance.
const (
	IngestionTypeScrape = "SCRAPE"
	IngestionTypeFeed   = "FEED"
	IngestionTypeManual = "MANUAL"
)

// Price is an ingested price row with provenance. Visibility recompute joins
// IngestionRunType and SourceID back to current source compliance state.
type Price struct {
	ID         string `db:"id"          json:"id"`
	SourceID   string `db:"source_id"   json:"source_id"`
	ProductID  string `db:"product_id"  json:"product_id"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Currency   string `db:"currency"    json:"currency"`

	IngestionRunType string    `db:"ingestion_run_type" json:"ingestion_run_type"`
	IngestionRunID   string    `db:"ingestion_run_id"   json:"ingestion_run_id"`
	ObservedAt       time.Time `db:"observed_at"        json:"observed_at"`

	Visible bool `db:"visible" json:"visible"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
