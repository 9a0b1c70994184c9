// Package harness runs site adapters against live pages without writing
// prices. It is the verification tool for adapter changes: every fetch goes
// through the full policy gate chain, every outcome is counted, and nothing
// reaches the product catalog.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/crawl"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/metrics"
)

// Sampling selects which stored targets a source-backed run processes.
type Sampling string

// Sampling strategies.
const (
	// SampleLatest takes the most recently created targets.
	SampleLatest Sampling = "latest"
	// SampleRandom takes a uniform random subset.
	SampleRandom Sampling = "random"
)

// DefaultDisableAfterBlocks is how many consecutive robots-blocked runs a
// target survives before it is disabled.
const DefaultDisableAfterBlocks = 3

// ErrComplianceGate is returned when a source fails its compliance gates and
// no operator override is given.
var ErrComplianceGate = errors.New("harness: source failed compliance gate")

// SourceGetter loads sources. Implemented by the database source repository.
type SourceGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Source, error)
}

// TargetSampler samples and updates stored targets. Implemented by the
// database target repository.
type TargetSampler interface {
	ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ScrapeTarget, error)
	ListRandom(ctx context.Context, sourceID string, limit int) ([]domain.ScrapeTarget, error)
	MarkScraped(ctx context.Context, id string) error
	MarkRobotsBlocked(ctx context.Context, id string, disableAfter int) error
}

// QuarantineSink receives offers that normalization flagged for review.
// A nil sink discards them after counting.
type QuarantineSink interface {
	Save(ctx context.Context, rec domain.QuarantineRecord) error
}

// Config configures one harness run.
type Config struct {
	// RunID labels the run in logs and quarantine records. Generated when
	// empty.
	RunID string
	// SourceID selects the source for source-backed runs.
	SourceID string
	// Limit caps how many targets a source-backed run samples.
	Limit int
	// Sampling picks latest-N or random-N targets.
	Sampling Sampling
	// Override skips the compliance gate. The override is always logged;
	// it exists for pre-approval adapter verification, not production runs.
	Override bool
	// DisableAfterBlocks is the consecutive-robots-block threshold after
	// which a target is disabled. Zero means DefaultDisableAfterBlocks.
	DisableAfterBlocks int
}

// Item is the per-URL outcome of a harness run.
type Item struct {
	TargetID    string                `json:"target_id,omitempty"`
	URL         string                `json:"url"`
	FetchStatus string                `json:"fetch_status"`
	Stage       string                `json:"stage"`
	Reason      string                `json:"reason,omitempty"`
	Offer       *domain.NormalizedOffer `json:"offer,omitempty"`
}

// Report summarizes a harness run.
type Report struct {
	RunID   string                `json:"run_id"`
	Counts  metrics.RunCounts     `json:"counts"`
	Reasons []metrics.ReasonCount `json:"reasons,omitempty"`
	Items   []Item                `json:"results"`
	Elapsed time.Duration         `json:"elapsed"`
	// Overridden is true when the compliance gate was bypassed.
	Overridden bool `json:"overridden,omitempty"`
}

// Harness drives adapters through the gated fetch path.
type Harness struct {
	session  *crawl.Session
	registry *adapter.Registry
	sources  SourceGetter
	targets  TargetSampler
	quar     QuarantineSink
	log      logger.Interface

	now func() time.Time
}

// New creates a Harness. sources and targets may be nil when only RunURLs is
// used; quar may always be nil.
func New(
	session *crawl.Session,
	registry *adapter.Registry,
	sources SourceGetter,
	targets TargetSampler,
	quar QuarantineSink,
	log logger.Interface,
) *Harness {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Harness{
		session:  session,
		registry: registry,
		sources:  sources,
		targets:  targets,
		quar:     quar,
		log:      log.WithComponent("harness"),
		now:      time.Now,
	}
}

// RunURLs processes an explicit URL list with the named adapter. It needs no
// stored source or targets, so it is the tool for developing an adapter
// before its source is registered. The policy gates still apply to every
// fetch.
func (h *Harness) RunURLs(ctx context.Context, adapterID string, urls []string, cfg Config) (*Report, error) {
	site, err := h.registry.Get(adapterID)
	if err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		return nil, errors.New("harness: url list is empty")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	log := h.log.WithRunID(runID)
	log.Info("starting url-list run", "adapter", adapterID, "urls", len(urls))

	m := metrics.NewRunMetrics()
	report := &Report{RunID: runID}

	for _, rawURL := range urls {
		item, err := h.processOne(ctx, site, workItem{url: rawURL}, runID, cfg, m, log)
		if err != nil {
			return report, err
		}
		report.Items = append(report.Items, item)
	}

	h.finish(report, m, log)

	return report, nil
}

// RunSource samples stored targets for a source and processes them. The
// source must pass its compliance gates unless cfg.Override is set.
func (h *Harness) RunSource(ctx context.Context, cfg Config) (*Report, error) {
	if h.sources == nil || h.targets == nil {
		return nil, errors.New("harness: source-backed runs need source and target repositories")
	}
	if cfg.SourceID == "" {
		return nil, errors.New("harness: source id is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("harness: sample limit must be positive")
	}

	source, err := h.sources.GetByID(ctx, cfg.SourceID)
	if err != nil {
		return nil, fmt.Errorf("harness: load source: %w", err)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	log := h.log.WithRunID(runID).WithSource(source.ID)

	overridden := false
	if failure := source.ComplianceFailure(); failure != "" {
		if !cfg.Override {
			return nil, fmt.Errorf("%w: %s: %s", ErrComplianceGate, source.ID, failure)
		}

		overridden = true
		log.Warn("compliance gate overridden by operator",
			"source", source.ID,
			"failure", failure)
	}

	site, err := h.registry.Get(source.AdapterID)
	if err != nil {
		return nil, err
	}

	targets, err := h.sample(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info("starting source run",
		"adapter", source.AdapterID,
		"sampling", string(cfg.Sampling),
		"targets", len(targets))

	m := metrics.NewRunMetrics()
	report := &Report{RunID: runID, Overridden: overridden}

	for _, target := range targets {
		item, err := h.processOne(ctx, site, workItem{
			url:        target.CanonicalURL,
			targetID:   target.ID,
			sourceID:   source.ID,
			retailerID: source.Name,
		}, runID, cfg, m, log)
		if err != nil {
			return report, err
		}
		report.Items = append(report.Items, item)
	}

	h.finish(report, m, log)

	return report, nil
}

func (h *Harness) sample(ctx context.Context, cfg Config) ([]domain.ScrapeTarget, error) {
	switch cfg.Sampling {
	case SampleRandom:
		return h.targets.ListRandom(ctx, cfg.SourceID, cfg.Limit)
	case SampleLatest, "":
		return h.targets.ListRecent(ctx, cfg.SourceID, cfg.Limit)
	default:
		return nil, fmt.Errorf("harness: unknown sampling strategy %q", cfg.Sampling)
	}
}

type workItem struct {
	url        string
	targetID   string
	sourceID   string
	retailerID string
}

// Pipeline stage names recorded on items.
const (
	stageFetch     = "fetch"
	stageExtract   = "extract"
	stageNormalize = "normalize"
	stageDone      = "done"
)

// processOne runs one URL through fetch, extract, and normalize. Only a
// robots.txt infrastructure failure or a cancelled context aborts the batch;
// every other failure, including adapter panics, is recorded on the item.
func (h *Harness) processOne(
	ctx context.Context,
	site adapter.SiteAdapter,
	work workItem,
	runID string,
	cfg Config,
	m *metrics.RunMetrics,
	log logger.Interface,
) (Item, error) {
	item := Item{TargetID: work.targetID, URL: work.url, Stage: stageFetch}

	result, err := h.session.GatedFetch(ctx, work.url)
	if err != nil {
		switch {
		case errors.Is(err, crawl.ErrRobotsUnavailable):
			return item, err
		case ctx.Err() != nil:
			return item, ctx.Err()
		case errors.Is(err, crawl.ErrRobotsDisallowed):
			item.FetchStatus = "robots-disallowed"
			m.RecordFetch(false, "robots-disallowed")
			h.markRobotsBlocked(ctx, work.targetID, cfg, log)
			return item, nil
		default:
			item.FetchStatus = "rejected"
			item.Reason = err.Error()
			m.RecordFetch(false, "rejected")
			log.Warn("url rejected before fetch", "url", work.url, "error", err)
			return item, nil
		}
	}

	item.FetchStatus = string(result.Status)
	if !result.OK() {
		m.RecordFetch(false, string(result.Status))
		return item, nil
	}
	m.RecordFetch(true, "")
	h.markScraped(ctx, work.targetID, log)

	actx := adapter.Context{
		SourceID:   work.sourceID,
		RetailerID: work.retailerID,
		RunID:      runID,
		TargetID:   work.targetID,
		Now:        h.now(),
		Logger:     log,
	}

	item.Stage = stageExtract
	extracted := h.safeExtract(site, string(result.Body), work.url, actx, log)
	if !extracted.OK {
		item.Reason = extracted.Reason
		m.RecordExtract(false, extracted.Reason)
		return item, nil
	}
	m.RecordExtract(true, "")

	item.Stage = stageNormalize
	normalized := h.safeNormalize(site, extracted.Offer, actx, log)
	m.RecordNormalize(string(normalized.Status), normalized.Reason)

	switch normalized.Status {
	case adapter.NormalizeOK:
		item.Stage = stageDone
		item.Offer = normalized.Offer
	case adapter.NormalizeQuarantine:
		item.Reason = normalized.Reason
		h.quarantine(ctx, site, work, runID, extracted.Offer, normalized.Reason, log)
	case adapter.NormalizeDrop:
		item.Reason = normalized.Reason
	}

	return item, nil
}

// safeExtract calls the adapter's Extract with panic recovery. An adapter
// bug must cost one URL, not the batch.
func (h *Harness) safeExtract(
	site adapter.SiteAdapter,
	content, pageURL string,
	actx adapter.Context,
	log logger.Interface,
) (result adapter.ExtractResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("adapter panicked during extract",
				"adapter", site.ID(),
				"url", pageURL,
				"panic", fmt.Sprint(r))
			result = adapter.ExtractFail(adapter.ReasonException, fmt.Sprint(r))
		}
	}()

	return site.Extract(content, pageURL, actx)
}

// safeNormalize calls the adapter's Normalize with panic recovery.
func (h *Harness) safeNormalize(
	site adapter.SiteAdapter,
	offer *domain.RawOffer,
	actx adapter.Context,
	log logger.Interface,
) (result adapter.NormalizeResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("adapter panicked during normalize",
				"adapter", site.ID(),
				"panic", fmt.Sprint(r))
			result = adapter.Quarantine(adapter.ReasonException)
		}
	}()

	return site.Normalize(offer, actx)
}

func (h *Harness) quarantine(
	ctx context.Context,
	site adapter.SiteAdapter,
	work workItem,
	runID string,
	offer *domain.RawOffer,
	reason string,
	log logger.Interface,
) {
	if h.quar == nil {
		return
	}

	rec := domain.QuarantineRecord{
		ID:             uuid.NewString(),
		RunID:          runID,
		SourceID:       work.sourceID,
		TargetID:       work.targetID,
		URL:            work.url,
		AdapterID:      site.ID(),
		AdapterVersion: site.Version(),
		Reason:         reason,
		Offer:          offer,
		QuarantinedAt:  h.now(),
	}

	if err := h.quar.Save(ctx, rec); err != nil {
		// Review storage is best effort; the counter already recorded the
		// quarantine.
		log.Error("failed to store quarantine record",
			"url", work.url,
			"error", err)
	}
}

func (h *Harness) markScraped(ctx context.Context, targetID string, log logger.Interface) {
	if h.targets == nil || targetID == "" {
		return
	}

	if err := h.targets.MarkScraped(ctx, targetID); err != nil {
		log.Error("failed to mark target scraped", "target", targetID, "error", err)
	}
}

func (h *Harness) markRobotsBlocked(ctx context.Context, targetID string, cfg Config, log logger.Interface) {
	if h.targets == nil || targetID == "" {
		return
	}

	disableAfter := cfg.DisableAfterBlocks
	if disableAfter <= 0 {
		disableAfter = DefaultDisableAfterBlocks
	}

	if err := h.targets.MarkRobotsBlocked(ctx, targetID, disableAfter); err != nil {
		log.Error("failed to mark target robots-blocked", "target", targetID, "error", err)
	}
}

func (h *Harness) finish(report *Report, m *metrics.RunMetrics, log logger.Interface) {
	report.Counts = m.Counts()
	report.Reasons = m.Reasons()
	report.Elapsed = m.Elapsed()

	log.Info("run finished",
		"fetched_ok", report.Counts.FetchedOK,
		"fetch_failed", report.Counts.FetchFailed,
		"extract_ok", report.Counts.ExtractOK,
		"extract_failed", report.Counts.ExtractFailed,
		"normalized_ok", report.Counts.NormalizedOK,
		"dropped", report.Counts.Dropped,
		"quarantined", report.Counts.Quarantined,
		"elapsed", report.Elapsed)
}
