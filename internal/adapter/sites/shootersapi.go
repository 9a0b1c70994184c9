package sites

import (
	"encoding/json"
	"strings"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// ShootersAPI extracts offers from the Shooters Supply JSON product API.
// Scrape targets for this retailer point at /api/products/{id} endpoints,
// so the fetched content is a JSON document rather than HTML.
type ShootersAPI struct{}

// NewShootersAPI creates the Shooters Supply adapter.
func NewShootersAPI() *ShootersAPI { return &ShootersAPI{} }

// ID implements SiteAdapter.
func (a *ShootersAPI) ID() string { return "shootersapi" }

// Version implements SiteAdapter.
func (a *ShootersAPI) Version() string { return "shootersapi/1" }

// shootersProduct mirrors the relevant fields of the API payload. The API
// reports prices in cents already.
type shootersProduct struct {
	Product *struct {
		Name       string            `json:"name"`
		PriceCents int64             `json:"price_cents"`
		Currency   string            `json:"currency"`
		InStock    *bool             `json:"in_stock"`
		UPC        string            `json:"upc"`
		SKU        string            `json:"sku"`
		ImageURL   string            `json:"image_url"`
		Specs      map[string]string `json:"specs"`
	} `json:"product"`
}

// Extract implements SiteAdapter.
func (a *ShootersAPI) Extract(content, pageURL string, ctx adapter.Context) adapter.ExtractResult {
	var payload shootersProduct
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return adapter.ExtractFail(adapter.ReasonBadJSON, err.Error())
	}

	product := payload.Product
	if product == nil {
		return adapter.ExtractFail(adapter.ReasonNoProduct, "payload missing product object")
	}

	if product.Name == "" {
		return adapter.ExtractFail(adapter.ReasonNoTitle, "product missing name")
	}

	if product.PriceCents <= 0 {
		return adapter.ExtractFail(adapter.ReasonNoPrice, "product missing price_cents")
	}

	availability := domain.AvailabilityUnknown
	if product.InStock != nil {
		if *product.InStock {
			availability = domain.AvailabilityInStock
		} else {
			availability = domain.AvailabilityOutOfStock
		}
	}

	var attributes map[string]string
	if len(product.Specs) > 0 {
		attributes = make(map[string]string, len(product.Specs))
		for key, value := range product.Specs {
			attributes[strings.ToLower(strings.TrimSpace(key))] = value
		}
	}

	offer := &domain.RawOffer{
		Title:          product.Name,
		PriceCents:     product.PriceCents,
		Currency:       strings.ToUpper(product.Currency),
		Availability:   availability,
		UPC:            product.UPC,
		SKU:            product.SKU,
		Attributes:     attributes,
		ImageURL:       product.ImageURL,
		URL:            pageURL,
		AdapterVersion: a.Version(),
		ObservedAt:     ctx.Now,
	}

	return adapter.ExtractOK(offer)
}

// Normalize implements SiteAdapter.
func (a *ShootersAPI) Normalize(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult {
	return normalizeCommon(offer, ctx)
}
