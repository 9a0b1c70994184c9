// Package discovery enumerates candidate product URLs from sitemaps and
// listing pages, gating every step through the SSRF guard, robots policy,
// and per-domain rate limiter before a URL may become a scrape target.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/openrounds/pricecrawl/internal/crawl"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/ssrf"
	"github.com/openrounds/pricecrawl/internal/urlkit"
)

// Mode selects what a discovery run does with its result set. The modes are
// mutually exclusive by construction.
type Mode string

// Discovery run modes.
const (
	// ModeCountOnly reports totals and writes nothing.
	ModeCountOnly Mode = "count-only"
	// ModeDryRun computes the full result set and writes nothing.
	ModeDryRun Mode = "dry-run"
	// ModeAccept persists accepted URLs via upsert-with-skip-duplicates.
	ModeAccept Mode = "accept"
)

// SeedKind distinguishes sitemap seeds from listing-page seeds.
type SeedKind string

// Seed kinds.
const (
	SeedSitemap SeedKind = "sitemap"
	SeedListing SeedKind = "listing"
)

// Seed is one discovery entry point.
type Seed struct {
	URL  string
	Kind SeedKind
}

// maxSitemapDepth bounds sitemap-index recursion so cyclic or unbounded
// sitemap graphs cannot run away.
const maxSitemapDepth = 2

// Candidate rejection reasons, reported in the run report.
const (
	rejectControlScheme = "control_scheme"
	rejectSSRF          = "ssrf_unsafe"
	rejectCrossDomain   = "cross_domain"
	rejectPatternMiss   = "pattern_miss"
	rejectRobots        = "robots_disallowed"
	rejectMalformed     = "malformed"
)

// TargetWriter persists accepted targets. Implemented by the database
// target repository.
type TargetWriter interface {
	UpsertBatch(ctx context.Context, targets []domain.ScrapeTarget) (int, error)
}

// Filter selects product URLs from the candidate stream. Exactly one of
// PathPrefix and URLRegex must be set.
type Filter struct {
	PathPrefix string
	URLRegex   *regexp.Regexp
}

// Match reports whether a URL passes the filter.
func (f *Filter) Match(rawURL string) bool {
	if f.URLRegex != nil {
		return f.URLRegex.MatchString(rawURL)
	}

	parsed, err := urlkit.Canonicalize(rawURL)
	if err != nil {
		return false
	}

	idx := strings.Index(strings.TrimPrefix(parsed, "https://"), "/")
	if idx < 0 {
		return f.PathPrefix == "" || f.PathPrefix == "/"
	}

	path := strings.TrimPrefix(parsed, "https://")[idx:]
	return strings.HasPrefix(path, f.PathPrefix)
}

// Config configures one discovery run.
type Config struct {
	SourceID  string
	AdapterID string
	// SourceURL is the source's registered base URL. Every seed and
	// candidate must share its registrable domain.
	SourceURL string
	Seeds     []Seed
	Filter    Filter
	Mode      Mode
	// MaxURLs is the operator-supplied cap for this run.
	MaxURLs int
	// SourceMaxURLs is the per-source configured cap. The effective cap is
	// the minimum of the two.
	SourceMaxURLs int
	// LogURLs logs every accepted URL individually.
	LogURLs bool
}

// Report summarizes one discovery run.
type Report struct {
	Mode           Mode
	SeedsScanned   int
	CandidatesSeen int
	Accepted       []string
	Duplicates     int
	RobotsSkipped  int
	Rejected       map[string]int
	Inserted       int
}

// CapExceededError is returned when a run discovers more URLs than the
// effective cap allows. The run aborts with zero writes; raising the cap is
// an explicit operator decision, never a silent truncation.
type CapExceededError struct {
	ConfiguredCap int
	RequestedCap  int
	EffectiveCap  int
	Attempted     int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf(
		"discovery cap exceeded: attempted %d urls, effective cap %d (requested %d, source configured %d); "+
			"raise the source's max_discovery_urls or pass a higher --max-urls to accept more",
		e.Attempted, e.EffectiveCap, e.RequestedCap, e.ConfiguredCap)
}

// Engine runs discovery for one source.
type Engine struct {
	session *crawl.Session
	writer  TargetWriter
	log     logger.Interface
}

// NewEngine creates a discovery engine. writer may be nil for count-only
// and dry-run usage.
func NewEngine(session *crawl.Session, writer TargetWriter, log logger.Interface) *Engine {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Engine{session: session, writer: writer, log: log.WithComponent("discovery")}
}

// Run executes one discovery pass. Infrastructure failures (invalid seed,
// robots fetch failure, cap exceeded) abort the run with an error;
// per-candidate rejections are counted in the report.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	effectiveCap := cfg.SourceMaxURLs
	if cfg.MaxURLs > 0 && cfg.MaxURLs < effectiveCap {
		effectiveCap = cfg.MaxURLs
	}

	report := &Report{Mode: cfg.Mode, Rejected: make(map[string]int)}

	candidates, err := e.collectCandidates(ctx, cfg, report)
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{})
	var unique []string

	for _, candidate := range candidates {
		report.CandidatesSeen++

		canonical, ok := e.gateCandidate(ctx, candidate, cfg, report)
		if !ok {
			continue
		}

		if _, dup := seen[canonical]; dup {
			report.Duplicates++
			continue
		}
		seen[canonical] = struct{}{}

		unique = append(unique, canonical)
	}

	allowed, err := e.checkRobots(ctx, unique, report)
	if err != nil {
		return report, err
	}

	if len(allowed) > effectiveCap {
		return report, &CapExceededError{
			ConfiguredCap: cfg.SourceMaxURLs,
			RequestedCap:  cfg.MaxURLs,
			EffectiveCap:  effectiveCap,
			Attempted:     len(allowed),
		}
	}

	report.Accepted = allowed
	if cfg.LogURLs {
		for _, u := range allowed {
			e.log.Info("accepted candidate", "url", u)
		}
	}

	if cfg.Mode == ModeAccept {
		inserted, err := e.persist(ctx, cfg, report.Accepted)
		if err != nil {
			return report, err
		}
		report.Inserted = inserted
	}

	e.log.Info("discovery run finished",
		"mode", string(cfg.Mode),
		"seeds", report.SeedsScanned,
		"candidates", report.CandidatesSeen,
		"accepted", len(report.Accepted),
		"duplicates", report.Duplicates,
		"robots_skipped", report.RobotsSkipped,
		"inserted", report.Inserted)

	return report, nil
}

func validateConfig(cfg *Config) error {
	if cfg.SourceID == "" || cfg.AdapterID == "" {
		return errors.New("discovery: source id and adapter id are required")
	}
	if cfg.SourceURL == "" {
		return errors.New("discovery: source url is required")
	}
	if len(cfg.Seeds) == 0 {
		return errors.New("discovery: at least one seed is required")
	}
	if cfg.Filter.PathPrefix == "" && cfg.Filter.URLRegex == nil {
		return errors.New("discovery: a product-url filter is required")
	}
	if cfg.Filter.PathPrefix != "" && cfg.Filter.URLRegex != nil {
		return errors.New("discovery: path prefix and url regex are mutually exclusive")
	}

	switch cfg.Mode {
	case ModeCountOnly, ModeDryRun, ModeAccept:
	default:
		return fmt.Errorf("discovery: unknown mode %q", cfg.Mode)
	}

	if cfg.SourceMaxURLs <= 0 {
		return errors.New("discovery: source max urls must be positive")
	}

	return nil
}

// collectCandidates walks every seed and returns raw candidate URLs in
// discovery order. Seed failures are infrastructure failures and abort.
func (e *Engine) collectCandidates(ctx context.Context, cfg Config, report *Report) ([]string, error) {
	var candidates []string

	for _, seed := range cfg.Seeds {
		if err := e.validateSeed(ctx, seed.URL, cfg.SourceURL); err != nil {
			return nil, err
		}

		report.SeedsScanned++

		switch seed.Kind {
		case SeedSitemap:
			urls, err := e.walkSitemap(ctx, seed.URL, 0)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, urls...)
		case SeedListing:
			urls, err := e.scanListing(ctx, seed.URL)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, urls...)
		default:
			return nil, fmt.Errorf("discovery: unknown seed kind %q", seed.Kind)
		}
	}

	return candidates, nil
}

// validateSeed checks a seed URL through the SSRF guard and the same-domain
// rule. A bad seed invalidates the run's premises, so it aborts.
func (e *Engine) validateSeed(ctx context.Context, seedURL, sourceURL string) error {
	if _, err := e.session.Guard.Assert(ctx, seedURL, ssrf.Options{}); err != nil {
		return fmt.Errorf("discovery: seed rejected: %w", err)
	}

	if !urlkit.SameDomain(seedURL, sourceURL) {
		return fmt.Errorf("discovery: seed %s is not on the source's domain", seedURL)
	}

	return nil
}

// gateCandidate applies the per-candidate gate sequence and returns the
// canonical URL when the candidate is accepted.
func (e *Engine) gateCandidate(
	ctx context.Context,
	candidate string,
	cfg Config,
	report *Report,
) (string, bool) {
	if isControlScheme(candidate) {
		report.Rejected[rejectControlScheme]++
		return "", false
	}

	if result := e.session.Guard.Validate(ctx, candidate, ssrf.Options{}); !result.Safe {
		report.Rejected[rejectSSRF]++
		return "", false
	}

	if !urlkit.SameDomain(candidate, cfg.SourceURL) {
		report.Rejected[rejectCrossDomain]++
		return "", false
	}

	if !cfg.Filter.Match(candidate) {
		report.Rejected[rejectPatternMiss]++
		return "", false
	}

	canonical, err := urlkit.Canonicalize(candidate)
	if err != nil {
		report.Rejected[rejectMalformed]++
		return "", false
	}

	return canonical, true
}

// checkRobots verifies a batch of accepted URLs against robots rules.
// Disallowed URLs are removed and counted; a robots fetch failure is a hard
// abort because the whole domain's policy is unknown.
func (e *Engine) checkRobots(ctx context.Context, urls []string, report *Report) ([]string, error) {
	allowed := urls[:0]

	for _, u := range urls {
		decision, err := e.session.Robots.Check(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("discovery: robots check: %w", err)
		}

		if !decision.FetchSucceeded {
			return nil, fmt.Errorf("%w: %s", crawl.ErrRobotsUnavailable, u)
		}

		if !decision.Allowed {
			report.RobotsSkipped++
			report.Rejected[rejectRobots]++
			continue
		}

		allowed = append(allowed, u)
	}

	return allowed, nil
}

// persist writes accepted URLs as scrape targets.
func (e *Engine) persist(ctx context.Context, cfg Config, accepted []string) (int, error) {
	if e.writer == nil {
		return 0, errors.New("discovery: accept mode requires a target writer")
	}

	targets := make([]domain.ScrapeTarget, 0, len(accepted))
	for _, canonical := range accepted {
		targets = append(targets, domain.ScrapeTarget{
			URL:          canonical,
			CanonicalURL: canonical,
			SourceID:     cfg.SourceID,
			AdapterID:    cfg.AdapterID,
			Enabled:      true,
			Status:       domain.TargetStatusActive,
			CreatedBy:    domain.TargetCreatedByDiscovery,
		})
	}

	inserted, err := e.writer.UpsertBatch(ctx, targets)
	if err != nil {
		return 0, fmt.Errorf("discovery: persist targets: %w", err)
	}

	return inserted, nil
}

// isControlScheme rejects non-navigational links: javascript:, mailto:,
// tel:, data:, and fragment-only references.
func isControlScheme(rawURL string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(rawURL))
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}

	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:", "vbscript:"} {
		if strings.HasPrefix(trimmed, scheme) {
			return true
		}
	}

	return false
}
