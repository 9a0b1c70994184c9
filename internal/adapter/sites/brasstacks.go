package sites

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// BrassTacks extracts offers from Brass Tacks Outfitters product pages.
// The site embeds schema.org Product JSON-LD, so extraction reads the
// structured data block rather than scraping the visible markup.
type BrassTacks struct{}

// NewBrassTacks creates the Brass Tacks adapter.
func NewBrassTacks() *BrassTacks { return &BrassTacks{} }

// ID implements SiteAdapter.
func (a *BrassTacks) ID() string { return "brasstacks" }

// Version implements SiteAdapter.
func (a *BrassTacks) Version() string { return "brasstacks/2" }

// jsonLDProduct mirrors the subset of schema.org Product we consume.
type jsonLDProduct struct {
	Type  string `json:"@type"`
	Name  string `json:"name"`
	Image any    `json:"image"`
	GTIN  string `json:"gtin13"`
	SKU   string `json:"sku"`
	// Price is a string in most storefronts' markup but a bare number in
	// some, so it is decoded loosely.
	Offers *struct {
		Price         any    `json:"price"`
		PriceCurrency string `json:"priceCurrency"`
		Availability  string `json:"availability"`
	} `json:"offers"`
	AdditionalProperty []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"additionalProperty"`
}

// Extract implements SiteAdapter.
func (a *BrassTacks) Extract(content, pageURL string, ctx adapter.Context) adapter.ExtractResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return adapter.ExtractFail(adapter.ReasonParseError, err.Error())
	}

	product, found := findProductJSONLD(doc)
	if !found {
		return adapter.ExtractFail(adapter.ReasonNoProduct, "no schema.org Product block")
	}

	if product.Name == "" {
		return adapter.ExtractFail(adapter.ReasonNoTitle, "Product block missing name")
	}

	priceText := offerPriceText(product)
	if priceText == "" {
		return adapter.ExtractFail(adapter.ReasonNoPrice, "Product block missing offers.price")
	}

	priceCents, err := parsePriceCents(priceText)
	if err != nil {
		return adapter.ExtractFail(adapter.ReasonNoPrice, err.Error())
	}

	offer := &domain.RawOffer{
		Title:          product.Name,
		PriceCents:     priceCents,
		Currency:       strings.ToUpper(product.Offers.PriceCurrency),
		Availability:   availabilityFromText(product.Offers.Availability),
		UPC:            product.GTIN,
		SKU:            product.SKU,
		ImageURL:       firstImage(product.Image),
		URL:            pageURL,
		AdapterVersion: a.Version(),
		ObservedAt:     ctx.Now,
	}

	if len(product.AdditionalProperty) > 0 {
		offer.Attributes = make(map[string]string, len(product.AdditionalProperty))
		for _, prop := range product.AdditionalProperty {
			key := strings.ToLower(strings.TrimSpace(prop.Name))
			if key != "" {
				offer.Attributes[key] = prop.Value
			}
		}
	}

	return adapter.ExtractOK(offer)
}

// Normalize implements SiteAdapter.
func (a *BrassTacks) Normalize(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult {
	return normalizeCommon(offer, ctx)
}

// findProductJSONLD scans every ld+json script for a Product block,
// including @graph containers.
func findProductJSONLD(doc *goquery.Document) (jsonLDProduct, bool) {
	var product jsonLDProduct
	found := false

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		if p, ok := decodeProduct([]byte(raw)); ok {
			product = p
			found = true
			return false
		}

		return true
	})

	return product, found
}

func decodeProduct(raw []byte) (jsonLDProduct, bool) {
	var single jsonLDProduct
	if err := json.Unmarshal(raw, &single); err == nil && isProductType(single.Type) {
		return single, true
	}

	var list []jsonLDProduct
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, entry := range list {
			if isProductType(entry.Type) {
				return entry, true
			}
		}
	}

	var graph struct {
		Graph []jsonLDProduct `json:"@graph"`
	}
	if err := json.Unmarshal(raw, &graph); err == nil {
		for _, entry := range graph.Graph {
			if isProductType(entry.Type) {
				return entry, true
			}
		}
	}

	return jsonLDProduct{}, false
}

func isProductType(t string) bool {
	return strings.EqualFold(t, "Product")
}

// offerPriceText renders the loosely typed offers.price field, or "".
func offerPriceText(product jsonLDProduct) string {
	if product.Offers == nil {
		return ""
	}

	switch v := product.Offers.Price.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', 2, 64)
	default:
		return ""
	}
}

// firstImage handles the schema.org image field being either a string or a
// list of strings.
func firstImage(image any) string {
	switch v := image.(type) {
	case string:
		return v
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				return s
			}
		}
	}

	return ""
}
