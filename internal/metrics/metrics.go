// Package metrics collects per-run pipeline counters and reason histograms.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// RunCounts holds the per-stage counters for one pipeline run.
type RunCounts struct {
	FetchedOK     int `json:"fetched_ok"`
	FetchFailed   int `json:"fetch_failed"`
	ExtractOK     int `json:"extract_ok"`
	ExtractFailed int `json:"extract_failed"`
	NormalizedOK  int `json:"normalized_ok"`
	Dropped       int `json:"dropped"`
	Quarantined   int `json:"quarantined"`
}

// Stage names for reason histograms.
const (
	StageFetch     = "fetch"
	StageExtract   = "extract"
	StageNormalize = "normalize"
)

// RunMetrics accumulates counters for one run. Safe for concurrent use.
type RunMetrics struct {
	mu        sync.Mutex
	counts    RunCounts
	reasons   map[string]map[string]int // stage -> reason -> count
	startTime time.Time
}

// NewRunMetrics creates an empty RunMetrics.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		reasons:   make(map[string]map[string]int),
		startTime: time.Now(),
	}
}

// RecordFetch records a fetch outcome; reason is the failure status for
// failed fetches.
func (m *RunMetrics) RecordFetch(ok bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.counts.FetchedOK++
		return
	}

	m.counts.FetchFailed++
	m.bumpLocked(StageFetch, reason)
}

// RecordExtract records an extract outcome.
func (m *RunMetrics) RecordExtract(ok bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.counts.ExtractOK++
		return
	}

	m.counts.ExtractFailed++
	m.bumpLocked(StageExtract, reason)
}

// RecordNormalize records a normalize outcome: "ok", "drop", or
// "quarantine", with the adapter's reason code for the latter two.
func (m *RunMetrics) RecordNormalize(status, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case "ok":
		m.counts.NormalizedOK++
	case "drop":
		m.counts.Dropped++
		m.bumpLocked(StageNormalize, reason)
	case "quarantine":
		m.counts.Quarantined++
		m.bumpLocked(StageNormalize, reason)
	}
}

func (m *RunMetrics) bumpLocked(stage, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if m.reasons[stage] == nil {
		m.reasons[stage] = make(map[string]int)
	}
	m.reasons[stage][reason]++
}

// Counts returns a snapshot of the stage counters.
func (m *RunMetrics) Counts() RunCounts {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts
}

// ReasonCount is one reason-histogram entry.
type ReasonCount struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Reasons returns the reason histogram sorted by stage then reason.
func (m *RunMetrics) Reasons() []ReasonCount {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ReasonCount
	for stage, byReason := range m.reasons {
		for reason, count := range byReason {
			out = append(out, ReasonCount{Stage: stage, Reason: reason, Count: count})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Reason < out[j].Reason
	})

	return out
}

// Elapsed returns the time since the run started.
func (m *RunMetrics) Elapsed() time.Duration {
	return time.Since(m.startTime)
}
