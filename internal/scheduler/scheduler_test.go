package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/harness"
	"github.com/openrounds/pricecrawl/internal/visibility"
)

type fakeSmoke struct {
	configs []harness.Config
	err     error
}

func (f *fakeSmoke) RunSource(_ context.Context, cfg harness.Config) (*harness.Report, error) {
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}

	return &harness.Report{RunID: "run-" + cfg.SourceID}, nil
}

type fakeRecomputer struct {
	calls int
	mode  visibility.Mode
	label string
}

func (f *fakeRecomputer) Recompute(_ context.Context, mode visibility.Mode, _, label string) (*visibility.Summary, error) {
	f.calls++
	f.mode = mode
	f.label = label

	return &visibility.Summary{Examined: 10, Shown: 7, Hidden: 3}, nil
}

type fakeSources struct {
	sources []domain.Source
	err     error
}

func (f *fakeSources) List(_ context.Context) ([]domain.Source, error) {
	return f.sources, f.err
}

func compliantSource(id string) domain.Source {
	reviewed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	approver := "compliance-team"

	return domain.Source{
		ID:              id,
		ScrapeEnabled:   true,
		RobotsCompliant: true,
		ToSReviewedAt:   &reviewed,
		ToSApprovedBy:   &approver,
		AdapterEnabled:  true,
	}
}

func TestRunSmokeSkipsNonCompliantSources(t *testing.T) {
	paused := compliantSource("src-paused")
	paused.IngestionPaused = true

	smoke := &fakeSmoke{}
	s := New(Config{SmokeLimit: 5},
		smoke, &fakeRecomputer{},
		&fakeSources{sources: []domain.Source{compliantSource("src-ok"), paused}},
		nil)

	s.runSmoke(context.Background())

	require.Len(t, smoke.configs, 1)
	cfg := smoke.configs[0]
	assert.Equal(t, "src-ok", cfg.SourceID)
	assert.Equal(t, 5, cfg.Limit)
	assert.Equal(t, harness.SampleRandom, cfg.Sampling)
	assert.False(t, cfg.Override, "scheduled runs must never override the gate")
}

func TestRunSmokeContinuesPastFailures(t *testing.T) {
	smoke := &fakeSmoke{err: errors.New("boom")}
	s := New(Config{SmokeLimit: 3},
		smoke, &fakeRecomputer{},
		&fakeSources{sources: []domain.Source{compliantSource("a"), compliantSource("b")}},
		nil)

	s.runSmoke(context.Background())

	assert.Len(t, smoke.configs, 2, "a failed run must not stop the remaining sources")
}

func TestRunRecompute(t *testing.T) {
	recomp := &fakeRecomputer{}
	s := New(Config{}, &fakeSmoke{}, recomp, &fakeSources{}, nil)

	s.runRecompute(context.Background())

	assert.Equal(t, 1, recomp.calls)
	assert.Equal(t, visibility.ModeFull, recomp.mode)
	assert.Equal(t, "scheduled", recomp.label)
}

func TestStartRejectsBadCron(t *testing.T) {
	s := New(Config{SmokeCron: "not a cron"}, &fakeSmoke{}, &fakeRecomputer{}, &fakeSources{}, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoke schedule")
}

func TestStartStop(t *testing.T) {
	s := New(Config{SmokeCron: "0 */6 * * *", RecomputeCron: "30 2 * * *"},
		&fakeSmoke{}, &fakeRecomputer{}, &fakeSources{}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	s.Stop()
	s.Stop()
}
