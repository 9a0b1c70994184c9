// Package robots fetches, parses, and caches robots.txt per registrable
// domain. Fetch failures fail closed: a domain whose robots.txt cannot be
// retrieved after retries is treated as disallow-everything, never allow-all.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/urlkit"
)

const (
	// DefaultCacheTTL is how long a parsed rule set is served from cache.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultFetchTimeout bounds a single robots.txt fetch.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultAttempts is the number of fetch attempts before failing closed.
	DefaultAttempts = 3
	// DefaultBackoffBase is multiplied by the attempt number between retries.
	DefaultBackoffBase = time.Second

	// MinCrawlDelay and MaxCrawlDelay clamp robots-reported crawl delays.
	MinCrawlDelay = time.Second
	MaxCrawlDelay = 60 * time.Second

	robotsPath = "/robots.txt"

	// maxBodyBytes limits the size of robots.txt responses we will read.
	maxBodyBytes = 512 * 1024
)

// Decision is the outcome of a robots check for one URL.
type Decision struct {
	Allowed bool
	// FetchSucceeded is false when robots.txt could not be retrieved after
	// retries; Allowed is always false in that case.
	FetchSucceeded bool
	// CrawlDelay is the robots-reported delay clamped to
	// [MinCrawlDelay, MaxCrawlDelay], or 0 when none is specified.
	CrawlDelay time.Duration
}

// Config configures a Policy.
type Config struct {
	UserAgent    string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	Attempts     int
	BackoffBase  time.Duration
}

// WithDefaults fills zero values with package defaults.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "pricecrawl/1.0"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	return c
}

// Policy checks URLs against cached per-domain robots.txt rule sets.
type Policy struct {
	httpClient *http.Client
	cfg        Config
	log        logger.Interface

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// cacheEntry holds one domain's parsed rule set. fetchOK false means the
// fetch failed after retries and the entry is a synthetic disallow-all.
type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchOK   bool
	fetchedAt time.Time
}

// NewPolicy creates a robots Policy. A nil httpClient gets a default client
// with the configured fetch timeout.
func NewPolicy(httpClient *http.Client, cfg Config, log logger.Interface) *Policy {
	cfg = cfg.WithDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Policy{
		httpClient: httpClient,
		cfg:        cfg,
		log:        log.WithComponent("robots"),
		cache:      make(map[string]*cacheEntry),
	}
}

// Check reports whether the URL may be fetched under the domain's robots.txt.
// The error is non-nil only for malformed input; policy outcomes, including
// fetch failure, are expressed through the Decision.
func (p *Policy) Check(ctx context.Context, rawURL string) (Decision, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Decision{}, fmt.Errorf("robots: parse url: %w", err)
	}

	domain, err := urlkit.RegistrableDomain(rawURL)
	if err != nil {
		return Decision{}, fmt.Errorf("robots: %w", err)
	}

	entry := p.getOrFetch(ctx, domain, parsed.Scheme, parsed.Host)

	if !entry.fetchOK {
		return Decision{Allowed: false, FetchSucceeded: false}, nil
	}

	pathWithQuery := parsed.EscapedPath()
	if pathWithQuery == "" {
		pathWithQuery = "/"
	}
	if parsed.RawQuery != "" {
		pathWithQuery += "?" + parsed.RawQuery
	}

	group := entry.data.FindGroup(p.cfg.UserAgent)

	return Decision{
		Allowed:        group.Test(pathWithQuery),
		FetchSucceeded: true,
		CrawlDelay:     clampCrawlDelay(group.CrawlDelay),
	}, nil
}

// CrawlDelay returns the cached crawl delay for a domain, or 0 when the
// domain has no cached rule set or no delay.
func (p *Policy) CrawlDelay(domain string) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.cache[domain]
	if !ok || !entry.fetchOK {
		return 0
	}

	return clampCrawlDelay(entry.data.FindGroup(p.cfg.UserAgent).CrawlDelay)
}

// getOrFetch returns a fresh cached entry, or fetches and caches one.
func (p *Policy) getOrFetch(ctx context.Context, domain, scheme, host string) *cacheEntry {
	p.mu.RLock()
	entry, ok := p.cache[domain]
	p.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) <= p.cfg.CacheTTL {
		return entry
	}

	entry = p.fetchWithRetry(ctx, scheme, host)

	p.mu.Lock()
	p.cache[domain] = entry
	p.mu.Unlock()

	return entry
}

// fetchWithRetry fetches robots.txt with bounded retry and linear backoff.
// Any HTTP response, including 404, counts as a successful fetch; only
// transport-level failures are retried.
func (p *Policy) fetchWithRetry(ctx context.Context, scheme, host string) *cacheEntry {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + robotsPath

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		body, statusCode, err := p.doFetch(ctx, robotsURL)
		if err == nil {
			return buildEntry(body, statusCode)
		}

		lastErr = err
		p.log.Warn("robots.txt fetch failed",
			"url", robotsURL,
			"attempt", attempt,
			"error", err)

		if attempt < p.cfg.Attempts {
			select {
			case <-time.After(p.cfg.BackoffBase * time.Duration(attempt)):
			case <-ctx.Done():
				attempt = p.cfg.Attempts
			}
		}
	}

	p.log.Error("robots.txt unreachable, failing closed",
		"url", robotsURL,
		"error", lastErr)

	return &cacheEntry{fetchOK: false, fetchedAt: time.Now()}
}

func (p *Policy) doFetch(ctx context.Context, robotsURL string) ([]byte, int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// buildEntry parses a robots.txt response. Per the robots exclusion protocol
// a 404 means no restrictions; robotstxt.FromStatusAndBytes applies the
// standard status-code handling (4xx allow-all, 5xx disallow-all).
func buildEntry(body []byte, statusCode int) *cacheEntry {
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		// Unparseable body with a 2xx status: treat like a failed fetch.
		return &cacheEntry{fetchOK: false, fetchedAt: time.Now()}
	}

	return &cacheEntry{data: data, fetchOK: true, fetchedAt: time.Now()}
}

// clampCrawlDelay clamps a robots-reported delay into the allowed window.
// Zero (unspecified) stays zero.
func clampCrawlDelay(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	if delay < MinCrawlDelay {
		return MinCrawlDelay
	}
	if delay > MaxCrawlDelay {
		return MaxCrawlDelay
	}
	return delay
}
