// Package urlkit provides URL canonicalization and domain grouping for the
// ingestion pipeline. Canonical URLs are the deduplication key for scrape
// targets, so the transformation must be deterministic and idempotent.
package urlkit

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams lists query parameters stripped during canonicalization.
// Advertising and analytics trackers that do not affect page content.
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"gclsrc":      {},
	"dclid":       {},
	"msclkid":     {},
	"mc_cid":      {},
	"mc_eid":      {},
	"ref":         {},
	"affiliate":   {},
	"camp":        {},
	"irclickid":   {},
	"avad":        {},
	"avadcommerce": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	// ErrEmptyURL is returned for empty input.
	ErrEmptyURL = errors.New("canonicalize: empty url")
	// ErrMissingSchemeOrHost is returned for relative or schemeless URLs.
	ErrMissingSchemeOrHost = errors.New("canonicalize: missing scheme or host")
)

// Canonicalize applies deterministic transformations to a raw URL so that
// equivalent URLs produce identical strings: scheme forced to https, host
// lowercased, default ports removed, fragment dropped, dot-segments resolved,
// trailing slash trimmed (except root), tracking and utm_* and empty-valued
// query parameters stripped, and remaining parameters sorted by key.
func Canonicalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrEmptyURL
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrMissingSchemeOrHost
	}

	originalScheme := strings.ToLower(parsed.Scheme)
	parsed.Scheme = "https"
	parsed.Host = canonicalHost(parsed, originalScheme)
	parsed.Fragment = ""
	parsed.User = nil
	parsed.RawQuery = cleanQuery(parsed.Query())
	parsed.Path = canonicalPath(parsed.Path)

	return parsed.String(), nil
}

// canonicalHost lowercases the host and removes the scheme's default port.
func canonicalHost(parsed *url.URL, originalScheme string) string {
	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()

	if port == "" || port == defaultPorts[originalScheme] || port == defaultPorts["https"] {
		return host
	}

	return host + ":" + port
}

// canonicalPath resolves dot segments and trims the trailing slash except for
// the root path.
func canonicalPath(p string) string {
	if p == "" {
		return ""
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "/" {
		return "/"
	}

	return cleaned
}

// cleanQuery strips tracking parameters, any utm_* key, and empty-valued
// parameters, then re-encodes the remainder sorted by key.
func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if isTrackingParam(key) {
			continue
		}

		kept := values[key][:0:0]
		for _, v := range values[key] {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			continue
		}

		values[key] = kept
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder
	for _, key := range keys {
		for _, value := range values[key] {
			if builder.Len() > 0 {
				builder.WriteByte('&')
			}
			builder.WriteString(url.QueryEscape(key))
			builder.WriteByte('=')
			builder.WriteString(url.QueryEscape(value))
		}
	}

	return builder.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}

	_, ok := trackingParams[lower]
	return ok
}
