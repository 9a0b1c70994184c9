// Package scheduler runs the periodic maintenance jobs: per-source smoke
// runs through the dry-run harness and the nightly visibility recompute.
// Every smoke run re-checks the source's compliance gates at execution time;
// a source disabled after scheduling simply skips its slot.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/harness"
	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/visibility"
)

// SmokeRunner executes a source-backed harness run. Implemented by
// harness.Harness.
type SmokeRunner interface {
	RunSource(ctx context.Context, cfg harness.Config) (*harness.Report, error)
}

// Recomputer executes a visibility recompute. Implemented by
// visibility.Recomputer.
type Recomputer interface {
	Recompute(ctx context.Context, mode visibility.Mode, scope, runLabel string) (*visibility.Summary, error)
}

// SourceLister loads the sources eligible for smoke runs.
type SourceLister interface {
	List(ctx context.Context) ([]domain.Source, error)
}

// Config holds the cron expressions and smoke-run size.
type Config struct {
	SmokeCron     string
	SmokeLimit    int
	RecomputeCron string
}

// Scheduler owns the cron runner and its two job kinds.
type Scheduler struct {
	cfg     Config
	smoke   SmokeRunner
	recomp  Recomputer
	sources SourceLister
	log     logger.Interface

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler. Jobs recover from panics so one bad run cannot
// kill the process.
func New(cfg Config, smoke SmokeRunner, recomp Recomputer, sources SourceLister, log logger.Interface) *Scheduler {
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.WithComponent("scheduler")

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		cfg:     cfg,
		smoke:   smoke,
		recomp:  recomp,
		sources: sources,
		log:     log,
		cron:    c,
	}
}

// Start registers the jobs and starts the cron runner. ctx cancellation is
// observed by the jobs, not the runner; call Stop to halt scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.cfg.SmokeCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.SmokeCron, func() { s.runSmoke(ctx) }); err != nil {
			return fmt.Errorf("scheduler: smoke schedule %q: %w", s.cfg.SmokeCron, err)
		}
	}

	if s.cfg.RecomputeCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.RecomputeCron, func() { s.runRecompute(ctx) }); err != nil {
			return fmt.Errorf("scheduler: recompute schedule %q: %w", s.cfg.RecomputeCron, err)
		}
	}

	s.cron.Start()
	s.running = true

	s.log.Info("scheduler started",
		"smoke_cron", s.cfg.SmokeCron,
		"recompute_cron", s.cfg.RecomputeCron)

	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false

	s.log.Info("scheduler stopped")
}

// runSmoke executes one harness run per compliant source. Sources that fail
// their gates are skipped, never overridden.
func (s *Scheduler) runSmoke(ctx context.Context) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		s.log.Error("failed to list sources for smoke run", "error", err)
		return
	}

	for i := range sources {
		source := &sources[i]

		if failure := source.ComplianceFailure(); failure != "" {
			s.log.Info("skipping smoke run",
				"source", source.ID,
				"failure", failure)
			continue
		}

		report, err := s.smoke.RunSource(ctx, harness.Config{
			SourceID: source.ID,
			Limit:    s.cfg.SmokeLimit,
			Sampling: harness.SampleRandom,
		})
		if err != nil {
			s.log.Error("smoke run failed", "source", source.ID, "error", err)
			continue
		}

		s.log.Info("smoke run finished",
			"source", source.ID,
			"run_id", report.RunID,
			"fetched_ok", report.Counts.FetchedOK,
			"extract_failed", report.Counts.ExtractFailed,
			"quarantined", report.Counts.Quarantined)
	}
}

func (s *Scheduler) runRecompute(ctx context.Context) {
	summary, err := s.recomp.Recompute(ctx, visibility.ModeFull, "", "scheduled")
	if err != nil {
		s.log.Error("scheduled recompute failed", "error", err)
		return
	}

	s.log.Info("scheduled recompute finished",
		"examined", summary.Examined,
		"shown", summary.Shown,
		"hidden", summary.Hidden)
}
