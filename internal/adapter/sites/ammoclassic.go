package sites

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// AmmoClassic extracts offers from Ammo Classic product pages. The site has
// no structured data; extraction scrapes the product detail markup and the
// specification table directly.
type AmmoClassic struct{}

// NewAmmoClassic creates the Ammo Classic adapter.
func NewAmmoClassic() *AmmoClassic { return &AmmoClassic{} }

// ID implements SiteAdapter.
func (a *AmmoClassic) ID() string { return "ammoclassic" }

// Version implements SiteAdapter.
func (a *AmmoClassic) Version() string { return "ammoclassic/3" }

// Extract implements SiteAdapter.
func (a *AmmoClassic) Extract(content, pageURL string, ctx adapter.Context) adapter.ExtractResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return adapter.ExtractFail(adapter.ReasonParseError, err.Error())
	}

	title := firstText(doc,
		"h1.product-title",
		".product-detail h1",
		"h1[itemprop='name']",
		"h1",
	)
	if title == "" {
		return adapter.ExtractFail(adapter.ReasonNoTitle, "no product heading")
	}

	priceText := firstText(doc,
		".product-price .price",
		"span.price-current",
		"[itemprop='price']",
		".price",
	)
	if priceText == "" {
		if attr, ok := doc.Find("[itemprop='price']").Attr("content"); ok {
			priceText = attr
		}
	}
	if priceText == "" {
		return adapter.ExtractFail(adapter.ReasonNoPrice, "no price element")
	}

	priceCents, err := parsePriceCents(priceText)
	if err != nil {
		return adapter.ExtractFail(adapter.ReasonNoPrice, err.Error())
	}

	availability := firstText(doc, ".availability", ".stock-status", "[itemprop='availability']")
	if availability == "" {
		// Fall back to the add-to-cart control: present means purchasable.
		if doc.Find("button.add-to-cart, #add-to-cart").Length() > 0 {
			availability = "in stock"
		}
	}

	offer := &domain.RawOffer{
		Title:          title,
		PriceCents:     priceCents,
		Currency:       "USD",
		Availability:   availabilityFromText(availability),
		SKU:            firstText(doc, ".product-sku", "[itemprop='sku']"),
		UPC:            specValue(doc, "upc"),
		Attributes:     specTable(doc),
		ImageURL:       imageSrc(doc),
		URL:            pageURL,
		AdapterVersion: a.Version(),
		ObservedAt:     ctx.Now,
	}

	return adapter.ExtractOK(offer)
}

// Normalize implements SiteAdapter.
func (a *AmmoClassic) Normalize(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult {
	return normalizeCommon(offer, ctx)
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	return ""
}

// specTable reads the product specification table into a name -> value
// map. Keys are lowercased; values keep their page casing so attributes
// round-trip verbatim.
func specTable(doc *goquery.Document) map[string]string {
	specs := make(map[string]string)

	doc.Find("table.product-specs tr, .specs-table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}

		key := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		value := strings.TrimSpace(cells.Eq(1).Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})

	if len(specs) == 0 {
		return nil
	}

	return specs
}

func specValue(doc *goquery.Document, key string) string {
	return specTable(doc)[key]
}

func imageSrc(doc *goquery.Document) string {
	if src, ok := doc.Find(".product-image img, img.main-image").First().Attr("src"); ok {
		return src
	}

	return ""
}
