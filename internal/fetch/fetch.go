// Package fetch performs the actual network fetch for the pipeline. It is a
// deliberately dumb primitive: no SSRF checking, no robots checking, no
// retries. Callers apply those gates before invoking Fetch.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status classifies a fetch outcome.
type Status string

// Fetch result statuses.
const (
	StatusOK           Status = "ok"
	StatusTimeout      Status = "timeout"
	StatusHTTPError    Status = "http-error"
	StatusNetworkError Status = "network-error"
	StatusTooLarge     Status = "too-large"
)

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps the response size.
	DefaultMaxBodyBytes = 5 * 1024 * 1024
)

// Result is the outcome of one fetch.
type Result struct {
	Status     Status
	StatusCode int
	// Body is the decoded response body. Set only when Status is ok.
	Body string
	// Err carries the underlying failure for non-ok statuses.
	Err error
	// Duration is the wall-clock fetch time.
	Duration time.Duration
}

// OK reports whether the fetch succeeded.
func (r *Result) OK() bool {
	return r.Status == StatusOK
}

// Options configures one fetch.
type Options struct {
	// Headers are added to the request verbatim.
	Headers map[string]string
}

// Config configures a Fetcher.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// WithDefaults fills zero values with package defaults.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "pricecrawl/1.0"
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Fetcher fetches pages with size caps and timeouts.
type Fetcher struct {
	httpClient *http.Client
	cfg        Config
}

// New creates a Fetcher. A nil httpClient gets a default client; the request
// timeout is applied per request via context either way.
func New(httpClient *http.Client, cfg Config) *Fetcher {
	cfg = cfg.WithDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Fetcher{httpClient: httpClient, cfg: cfg}
}

// Fetch retrieves the URL and returns a Result. Fetch never returns an
// error; every failure mode is expressed through the Result status so batch
// callers can count outcomes without unwinding.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) *Result {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return &Result{
			Status:   StatusNetworkError,
			Err:      fmt.Errorf("fetch: create request: %w", err),
			Duration: time.Since(start),
		}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if looksLikeAPIEndpoint(rawURL) {
		req.Header.Set("Accept", "application/json")
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &Result{
			Status:   classifyTransportError(err),
			Err:      fmt.Errorf("fetch: %w", err),
			Duration: time.Since(start),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &Result{
			Status:     StatusHTTPError,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetch: http status %d", resp.StatusCode),
			Duration:   time.Since(start),
		}
	}

	// Fast-fail on a declared oversize body before reading anything.
	if resp.ContentLength > f.cfg.MaxBodyBytes {
		return &Result{
			Status:     StatusTooLarge,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetch: content-length %d exceeds cap %d", resp.ContentLength, f.cfg.MaxBodyBytes),
			Duration:   time.Since(start),
		}
	}

	// Read one byte past the cap to detect missing or lying headers.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return &Result{
			Status:     classifyTransportError(err),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetch: read body: %w", err),
			Duration:   time.Since(start),
		}
	}

	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return &Result{
			Status:     StatusTooLarge,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetch: body exceeds cap %d", f.cfg.MaxBodyBytes),
			Duration:   time.Since(start),
		}
	}

	return &Result{
		Status:     StatusOK,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Duration:   time.Since(start),
	}
}

// classifyTransportError separates deadline expiry from other network
// failures so callers can report timeouts as their own status.
func classifyTransportError(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	return StatusNetworkError
}

// looksLikeAPIEndpoint reports whether the URL heuristically points at a
// JSON API: an /api/ path segment, a .json suffix, or fieldset/include
// query parameters.
func looksLikeAPIEndpoint(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	path := strings.ToLower(parsed.Path)
	if strings.Contains(path, "/api/") || strings.HasSuffix(path, ".json") {
		return true
	}

	query := parsed.Query()
	return query.Has("fieldset") || query.Has("include")
}
