// Package visibility rebuilds the "currently visible prices" derived set,
// enforcing source compliance gates independently of whether the adapter
// runs that produced the prices succeeded.
package visibility

import (
	"context"
	"fmt"
	"time"

	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/logger"
)

// Mode selects the recompute scope.
type Mode string

// Recompute modes.
const (
	ModeFull   Mode = "full"
	ModeSource Mode = "source"
)

// PriceStore is the slice of the price repository the recompute needs.
type PriceStore interface {
	ListByRunType(ctx context.Context, runType, sourceID string) ([]domain.Price, error)
	SetVisibility(ctx context.Context, ids []string, visible bool) error
}

// SourceStore reads current source compliance state.
type SourceStore interface {
	List(ctx context.Context) ([]domain.Source, error)
}

// Summary reports what one recompute changed.
type Summary struct {
	RunLabel   string
	Mode       Mode
	Scope      string
	Examined   int
	Shown      int
	Hidden     int
	Unchanged  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recomputer applies the visibility guardrail.
type Recomputer struct {
	prices  PriceStore
	sources SourceStore
	log     logger.Interface
}

// New creates a Recomputer.
func New(prices PriceStore, sources SourceStore, log logger.Interface) *Recomputer {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Recomputer{prices: prices, sources: sources, log: log.WithComponent("visibility")}
}

// Recompute rebuilds visibility for SCRAPE-ingested prices. scope is a
// source id for ModeSource and ignored for ModeFull.
//
// A SCRAPE price is eligible for visibility only while its source currently
// has scrape_enabled and robots_compliant set — compliance is evaluated
// against current source state, not the state at ingestion time, so
// revoking approval retroactively hides previously collected prices.
//
// One asymmetry is intentional: a price that is already visible stays
// visible when its source merely has scrape_enabled turned off, as long as
// the source remains robots_compliant. Disabling scraping means "stop
// collecting new data"; a robots-compliance failure means "this data should
// not have been collected" and hides it immediately.
//
// Prices with non-SCRAPE ingestion types bypass the gate entirely.
func (r *Recomputer) Recompute(ctx context.Context, mode Mode, scope, runLabel string) (*Summary, error) {
	if mode == ModeSource && scope == "" {
		return nil, fmt.Errorf("visibility: source mode requires a source id")
	}
	if mode == ModeFull {
		scope = ""
	}

	summary := &Summary{RunLabel: runLabel, Mode: mode, Scope: scope, StartedAt: time.Now()}

	sources, err := r.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("visibility: load sources: %w", err)
	}

	sourceByID := make(map[string]*domain.Source, len(sources))
	for i := range sources {
		sourceByID[sources[i].ID] = &sources[i]
	}

	prices, err := r.prices.ListByRunType(ctx, domain.IngestionTypeScrape, scope)
	if err != nil {
		return nil, fmt.Errorf("visibility: load prices: %w", err)
	}

	var toShow, toHide []string
	for i := range prices {
		price := &prices[i]
		summary.Examined++

		want := eligible(sourceByID[price.SourceID], price.Visible)
		switch {
		case want == price.Visible:
			summary.Unchanged++
		case want:
			toShow = append(toShow, price.ID)
		default:
			toHide = append(toHide, price.ID)
		}
	}

	if err := r.prices.SetVisibility(ctx, toShow, true); err != nil {
		return nil, fmt.Errorf("visibility: show prices: %w", err)
	}
	if err := r.prices.SetVisibility(ctx, toHide, false); err != nil {
		return nil, fmt.Errorf("visibility: hide prices: %w", err)
	}

	summary.Shown = len(toShow)
	summary.Hidden = len(toHide)
	summary.FinishedAt = time.Now()

	r.log.Info("visibility recompute finished",
		"run_label", runLabel,
		"mode", string(mode),
		"scope", scope,
		"examined", summary.Examined,
		"shown", summary.Shown,
		"hidden", summary.Hidden,
		"unchanged", summary.Unchanged)

	return summary, nil
}

// eligible decides whether a SCRAPE price should be visible given its
// source's current compliance state. An unknown source fails closed.
func eligible(source *domain.Source, currentlyVisible bool) bool {
	if source == nil {
		return false
	}

	if !source.RobotsCompliant {
		return false
	}

	if source.ScrapeEnabled {
		return true
	}

	// scrape_enabled off: keep what is already shown, admit nothing new.
	return currentlyVisible
}
