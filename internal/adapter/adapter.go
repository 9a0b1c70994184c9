// Package adapter defines the site adapter contract: per-retailer extract
// and normalize implementations selected at runtime by a stable string id.
package adapter

import (
	"time"

	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/logger"
)

// Context is the read-only execution context supplied to every adapter call.
// Adapters must not mutate it.
type Context struct {
	SourceID   string
	RetailerID string
	RunID      string
	TargetID   string
	Now        time.Time
	Logger     logger.Interface
}

// Extract failure reason codes shared across adapters. Adapters may define
// additional codes; all codes must be stable strings because they feed
// aggregate metrics.
const (
	ReasonParseError    = "PARSE_ERROR"
	ReasonNoProduct     = "NO_PRODUCT"
	ReasonNoPrice       = "NO_PRICE"
	ReasonNoTitle       = "NO_TITLE"
	ReasonBadJSON       = "BAD_JSON"
	ReasonException     = "EXCEPTION"
	ReasonNotAmmunition = "NOT_AMMUNITION"
	ReasonBadCurrency   = "BAD_CURRENCY"
	ReasonPriceSuspect  = "PRICE_SUSPECT"
	ReasonIncomplete    = "INCOMPLETE"
)

// ExtractResult is the outcome of extracting a raw offer from page content.
type ExtractResult struct {
	OK     bool
	Offer  *domain.RawOffer
	Reason string
	// Details optionally elaborates on the failure for logs.
	Details string
}

// ExtractOK wraps a successful extraction.
func ExtractOK(offer *domain.RawOffer) ExtractResult {
	return ExtractResult{OK: true, Offer: offer}
}

// ExtractFail wraps a failed extraction with a stable reason code.
func ExtractFail(reason, details string) ExtractResult {
	return ExtractResult{Reason: reason, Details: details}
}

// NormalizeStatus classifies a normalization outcome. Drop and quarantine
// are successful return values, not errors.
type NormalizeStatus string

// Normalize statuses.
const (
	NormalizeOK         NormalizeStatus = "ok"
	NormalizeDrop       NormalizeStatus = "drop"
	NormalizeQuarantine NormalizeStatus = "quarantine"
)

// NormalizeResult is the outcome of normalizing a raw offer.
type NormalizeResult struct {
	Status NormalizeStatus
	// Offer is set only for status ok.
	Offer *domain.NormalizedOffer
	// Reason is set for drop and quarantine.
	Reason string
}

// Normalized wraps an accepted offer.
func Normalized(offer *domain.NormalizedOffer) NormalizeResult {
	return NormalizeResult{Status: NormalizeOK, Offer: offer}
}

// Drop marks an offer as out-of-policy, to be discarded silently with only
// aggregate counters retained.
func Drop(reason string) NormalizeResult {
	return NormalizeResult{Status: NormalizeDrop, Reason: reason}
}

// Quarantine marks an offer as suspicious or incomplete, needing human
// review rather than silent discard.
func Quarantine(reason string) NormalizeResult {
	return NormalizeResult{Status: NormalizeQuarantine, Reason: reason}
}

// SiteAdapter is implemented once per supported retailer.
type SiteAdapter interface {
	// ID returns the stable identifier the adapter registers under.
	ID() string
	// Version identifies the adapter revision recorded on extracted offers.
	Version() string
	// Extract parses page content into a raw offer. It must not panic for
	// malformed-but-parseable input; panics are reserved for adapter bugs.
	Extract(content, pageURL string, ctx Context) ExtractResult
	// Normalize applies retailer business rules to a raw offer.
	Normalize(offer *domain.RawOffer, ctx Context) NormalizeResult
}
