// Package crawl wires the policy gates around a fetch into one per-run
// session object. The session owns the shared mutable state (robots cache,
// rate-limiter buckets, SSRF DNS memo) so its lifetime is exactly one
// discovery or dry-run invocation, never shared across concurrent runs.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openrounds/pricecrawl/internal/fetch"
	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/ratelimit"
	"github.com/openrounds/pricecrawl/internal/robots"
	"github.com/openrounds/pricecrawl/internal/ssrf"
)

// ErrRobotsUnavailable reports a robots.txt fetch failure, which callers
// must treat as an infrastructure failure for the whole domain, not a
// per-URL skip.
var ErrRobotsUnavailable = errors.New("crawl: robots.txt unavailable, failing closed")

// ErrRobotsDisallowed reports a URL blocked by the domain's robots rules.
var ErrRobotsDisallowed = errors.New("crawl: disallowed by robots.txt")

// Config configures a Session.
type Config struct {
	UserAgent string
	// DelayFloor is the configured minimum per-domain delay. The robots
	// crawl-delay can raise the effective delay, never lower it below this.
	DelayFloor time.Duration
	// FetchTimeout bounds one page fetch.
	FetchTimeout time.Duration
	// MaxBodyBytes caps one page response.
	MaxBodyBytes int64
}

// Session bundles the SSRF guard, robots policy, rate limiter, and fetcher
// for one run.
type Session struct {
	Guard   *ssrf.Guard
	Robots  *robots.Policy
	Limiter *ratelimit.Limiter
	Fetcher *fetch.Fetcher

	cfg Config
	log logger.Interface
}

// NewSession creates a Session with fresh per-run state. A nil httpClient
// gets defaults.
func NewSession(httpClient *http.Client, cfg Config, log logger.Interface) *Session {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Session{
		Guard: ssrf.NewGuard(),
		Robots: robots.NewPolicy(httpClient, robots.Config{
			UserAgent: cfg.UserAgent,
		}, log),
		Limiter: ratelimit.NewLimiter(),
		Fetcher: fetch.New(httpClient, fetch.Config{
			UserAgent:    cfg.UserAgent,
			Timeout:      cfg.FetchTimeout,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}),
		cfg: cfg,
		log: log,
	}
}

// GatedFetch runs the full gate sequence for one URL: SSRF validation,
// robots check (fail closed on fetch failure), the per-domain rate-limit
// wait with the robots-aware effective delay, then the fetch itself.
func (s *Session) GatedFetch(ctx context.Context, rawURL string) (*fetch.Result, error) {
	if _, err := s.Guard.Assert(ctx, rawURL, ssrf.Options{}); err != nil {
		return nil, err
	}

	decision, err := s.Robots.Check(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !decision.FetchSucceeded {
		return nil, fmt.Errorf("%w: %s", ErrRobotsUnavailable, rawURL)
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
	}

	delay := ratelimit.EffectiveDelay(s.cfg.DelayFloor, decision.CrawlDelay)
	if err := s.Limiter.Wait(ctx, rawURL, delay); err != nil {
		return nil, err
	}

	return s.Fetcher.Fetch(ctx, rawURL, fetch.Options{}), nil
}
