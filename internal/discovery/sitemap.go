package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sitemapURLSet is the <urlset> document of the sitemap protocol.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

// sitemapIndex is the <sitemapindex> document pointing at child sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// walkSitemap fetches a sitemap through the gated fetch path and returns its
// URL entries. Sitemap indexes recurse into their children up to
// maxSitemapDepth levels down.
func (e *Engine) walkSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	result, err := e.session.GatedFetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: sitemap %s: %w", sitemapURL, err)
	}
	if !result.OK() {
		return nil, fmt.Errorf("discovery: sitemap %s: fetch %s", sitemapURL, result.Status)
	}

	if index, ok := parseSitemapIndex([]byte(result.Body)); ok {
		if depth >= maxSitemapDepth {
			e.log.Warn("sitemap index nesting too deep, skipping children",
				"url", sitemapURL, "depth", depth)
			return nil, nil
		}

		var urls []string
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}

			childURLs, err := e.walkSitemap(ctx, loc, depth+1)
			if err != nil {
				return nil, err
			}
			urls = append(urls, childURLs...)
		}

		return urls, nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal([]byte(result.Body), &set); err != nil {
		return nil, fmt.Errorf("discovery: sitemap %s: parse: %w", sitemapURL, err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, entry := range set.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}

	return urls, nil
}

// parseSitemapIndex tries the <sitemapindex> shape first so index documents
// are not silently read as empty urlsets.
func parseSitemapIndex(body []byte) (*sitemapIndex, bool) {
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, false
	}
	if index.XMLName.Local != "sitemapindex" {
		return nil, false
	}

	return &index, true
}

// scanListing fetches a listing page and extracts every href, resolved
// against the page URL so relative links become absolute candidates.
func (e *Engine) scanListing(ctx context.Context, listingURL string) ([]string, error) {
	result, err := e.session.GatedFetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: listing %s: %w", listingURL, err)
	}
	if !result.OK() {
		return nil, fmt.Errorf("discovery: listing %s: fetch %s", listingURL, result.Status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(result.Body)))
	if err != nil {
		return nil, fmt.Errorf("discovery: listing %s: parse: %w", listingURL, err)
	}

	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: listing %s: %w", listingURL, err)
	}

	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}

		href = strings.TrimSpace(href)
		if href == "" || isControlScheme(href) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		urls = append(urls, base.ResolveReference(ref).String())
	})

	return urls, nil
}
