// Package sites contains the per-retailer adapter implementations and their
// shared parsing helpers.
package sites

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openrounds/pricecrawl/internal/adapter"
)

// RegisterAll registers every built-in retailer adapter. Called once from
// startup wiring; a duplicate id panics there because it is a build bug.
func RegisterAll(registry *adapter.Registry) {
	registry.MustRegister(NewBrassTacks())
	registry.MustRegister(NewAmmoClassic())
	registry.MustRegister(NewShootersAPI())
}

// priceRe matches a currency amount like "$19.99", "19.99" or "1,299.00".
var priceRe = regexp.MustCompile(`\$?\s*([0-9][0-9,]*)(?:\.([0-9]{1,2}))?`)

// parsePriceCents parses a display price into integer cents. Returns an
// error for anything that does not contain a recognizable amount.
func parsePriceCents(text string) (int64, error) {
	match := priceRe.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0, fmt.Errorf("no price in %q", text)
	}

	whole := strings.ReplaceAll(match[1], ",", "")
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}

	cents := int64(0)
	if match[2] != "" {
		fraction := match[2]
		if len(fraction) == 1 {
			fraction += "0"
		}
		cents, err = strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price %q: %w", text, err)
		}
	}

	return dollars*100 + cents, nil
}

// availabilityFromText maps free-form availability text to the shared
// vocabulary.
func availabilityFromText(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case lower == "":
		return "unknown"
	case strings.Contains(lower, "out of stock"),
		strings.Contains(lower, "outofstock"),
		strings.Contains(lower, "sold out"),
		strings.Contains(lower, "unavailable"):
		return "out_of_stock"
	case strings.Contains(lower, "pre-order"),
		strings.Contains(lower, "preorder"),
		strings.Contains(lower, "backorder"):
		return "preorder"
	case strings.Contains(lower, "in stock"),
		strings.Contains(lower, "instock"),
		strings.Contains(lower, "available"),
		strings.Contains(lower, "add to cart"):
		return "in_stock"
	default:
		return "unknown"
	}
}

// caliberAliases maps common caliber spellings to one normalized form.
var caliberAliases = map[string]string{
	"9mm":          "9mm Luger",
	"9mm luger":    "9mm Luger",
	"9x19":         "9mm Luger",
	"9x19mm":       "9mm Luger",
	"45 acp":       ".45 ACP",
	".45 acp":      ".45 ACP",
	"45acp":        ".45 ACP",
	"223":          ".223 Remington",
	".223":         ".223 Remington",
	"223 rem":      ".223 Remington",
	".223 rem":     ".223 Remington",
	"5.56":         "5.56x45mm NATO",
	"5.56 nato":    "5.56x45mm NATO",
	"5.56x45":      "5.56x45mm NATO",
	"5.56x45mm":    "5.56x45mm NATO",
	"22lr":         ".22 LR",
	".22 lr":       ".22 LR",
	"22 lr":        ".22 LR",
	"308":          ".308 Winchester",
	".308":         ".308 Winchester",
	"308 win":      ".308 Winchester",
	"12ga":         "12 Gauge",
	"12 gauge":     "12 Gauge",
	"12 ga":        "12 Gauge",
	"40 s&w":       ".40 S&W",
	".40 s&w":      ".40 S&W",
	"380":          ".380 ACP",
	".380 acp":     ".380 ACP",
	"380 acp":      ".380 ACP",
	"7.62x39":      "7.62x39mm",
	"7.62x39mm":    "7.62x39mm",
	"6.5 creedmoor": "6.5 Creedmoor",
}

// normalizeCaliber maps a raw caliber string to its normalized form, or ""
// when the caliber is not recognized.
func normalizeCaliber(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if normalized, ok := caliberAliases[key]; ok {
		return normalized
	}

	return ""
}

// caliberFromTitle scans a product title for a recognizable caliber token.
func caliberFromTitle(title string) string {
	lower := strings.ToLower(title)
	for alias, normalized := range caliberAliases {
		if strings.Contains(lower, alias) {
			return normalized
		}
	}

	return ""
}

var (
	packRe  = regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:rds?|rounds?|count|ct|/?\s*box)\b`)
	grainRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:gr|grain)\b`)
)

// packCountFromTitle extracts a rounds-per-pack count from a title, or 0.
func packCountFromTitle(title string) int {
	match := packRe.FindStringSubmatch(title)
	if match == nil {
		return 0
	}

	count, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}

	return count
}

// grainFromTitle extracts a grain weight from a title, or 0.
func grainFromTitle(title string) int {
	match := grainRe.FindStringSubmatch(title)
	if match == nil {
		return 0
	}

	grain, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}

	return grain
}

// ammoKeywords are title tokens that identify an ammunition product.
var ammoKeywords = []string{
	"ammo", "ammunition", "cartridge", "rounds", "rds",
	"fmj", "jhp", "hollow point", "full metal jacket", "birdshot", "buckshot",
}

// looksLikeAmmunition reports whether a title plausibly describes an
// ammunition product. A recognized caliber alone is enough.
func looksLikeAmmunition(title string) bool {
	lower := strings.ToLower(title)

	if caliberFromTitle(title) != "" {
		return true
	}

	for _, keyword := range ammoKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return false
}

// Sanity bounds for normalized prices. Outside this window the offer is
// quarantined for review rather than trusted.
const (
	minSanePriceCents = 100        // $1.00
	maxSanePriceCents = 10_000_00  // $10,000.00
)

func priceSuspect(priceCents int64) bool {
	return priceCents < minSanePriceCents || priceCents > maxSanePriceCents
}
