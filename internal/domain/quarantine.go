package domain

import "time"

// Quarantine review states.
const (
	QuarantinePending  = "PENDING"
	QuarantineResolved = "RESOLVED"
	QuarantineRejected = "REJECTED"
)

// QuarantineRecord is an offer flagged during normalization and parked for
// human review instead of silent discard. Records are indexed in the review
// store keyed by ID.
type QuarantineRecord struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	SourceID       string    `json:"source_id,omitempty"`
	TargetID       string    `json:"target_id,omitempty"`
	URL            string    `json:"url"`
	AdapterID      string    `json:"adapter_id"`
	AdapterVersion string    `json:"adapter_version"`
	Reason         string    `json:"reason"`
	Offer          *RawOffer `json:"offer,omitempty"`
	Status         string    `json:"status,omitempty"`
	QuarantinedAt  time.Time `json:"quarantined_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy     string    `json:"reviewed_by,omitempty"`
}
