package domain

import "time"

// Availability values produced by adapter normalization.
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityPreorder   = "preorder"
	AvailabilityUnknown    = "unknown"
)

// RawOffer is a site-specific offer as extracted from HTML or JSON.
// It is produced once per successful extract and never mutated.
type RawOffer struct {
	Title        string            `json:"title"`
	PriceCents   int64             `json:"price_cents"`
	Currency     string            `json:"currency"`
	Availability string            `json:"availability"`
	UPC          string            `json:"upc,omitempty"`
	SKU          string            `json:"sku,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`

	URL            string    `json:"url"`
	AdapterVersion string    `json:"adapter_version"`
	ObservedAt     time.Time `json:"observed_at"`
}

// NormalizedOffer is a RawOffer after adapter business-rule normalization.
// Only status ok offers are handed to persistence.
type NormalizedOffer struct {
	RawOffer

	SourceID   string `json:"source_id"`
	RetailerID string `json:"retailer_id"`

	// Rounds per pack and per-round price, derived where the adapter can.
	PackCount     int    `json:"pack_count,omitempty"`
	PricePerRound int64  `json:"price_per_round_cents,omitempty"`
	CaliberNormal string `json:"caliber,omitempty"`
	GrainWeight   int    `json:"grain_weight,omitempty"`
}
