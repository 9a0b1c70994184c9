package sites

import (
	"strings"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// normalizeCommon applies the business rules shared by every retailer
// adapter. Retailer-specific adapters call it after any site-specific
// adjustments to the raw offer.
//
// Outcomes:
//   - drop: the product is not ammunition (out of policy, discarded silently)
//   - quarantine: missing or implausible fields that need human review
//   - ok: a fully populated normalized offer
func normalizeCommon(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult {
	if offer == nil {
		return adapter.Quarantine(adapter.ReasonIncomplete)
	}

	title := strings.TrimSpace(offer.Title)
	if title == "" {
		return adapter.Quarantine(adapter.ReasonIncomplete)
	}

	if !looksLikeAmmunition(title) {
		return adapter.Drop(adapter.ReasonNotAmmunition)
	}

	currency := strings.ToUpper(strings.TrimSpace(offer.Currency))
	if currency == "" {
		currency = "USD"
	}
	if currency != "USD" {
		return adapter.Drop(adapter.ReasonBadCurrency)
	}

	if offer.PriceCents <= 0 {
		return adapter.Quarantine(adapter.ReasonNoPrice)
	}

	if priceSuspect(offer.PriceCents) {
		return adapter.Quarantine(adapter.ReasonPriceSuspect)
	}

	normalized := &domain.NormalizedOffer{
		RawOffer:   *offer,
		SourceID:   ctx.SourceID,
		RetailerID: ctx.RetailerID,
	}
	normalized.Currency = currency
	normalized.Title = title

	normalized.CaliberNormal = caliberFromAttributes(offer)
	if normalized.CaliberNormal == "" {
		normalized.CaliberNormal = caliberFromTitle(title)
	}

	normalized.GrainWeight = grainFromAttributes(offer)
	if normalized.GrainWeight == 0 {
		normalized.GrainWeight = grainFromTitle(title)
	}

	normalized.PackCount = packCountFromTitle(title)
	if normalized.PackCount > 0 {
		normalized.PricePerRound = offer.PriceCents / int64(normalized.PackCount)
	}

	return adapter.Normalized(normalized)
}

func caliberFromAttributes(offer *domain.RawOffer) string {
	for _, key := range []string{"caliber", "cartridge"} {
		if raw, ok := offer.Attributes[key]; ok {
			if normalized := normalizeCaliber(raw); normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func grainFromAttributes(offer *domain.RawOffer) int {
	for _, key := range []string{"grain weight", "grain", "bullet weight"} {
		if raw, ok := offer.Attributes[key]; ok {
			if grain := parseLeadingInt(raw); grain > 0 && grain < 1000 {
				return grain
			}
		}
	}

	return 0
}

func parseLeadingInt(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}

	value := 0
	for _, c := range raw[:end] {
		value = value*10 + int(c-'0')
	}

	return value
}
