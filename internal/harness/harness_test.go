package harness

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/crawl"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/robots"
	"github.com/openrounds/pricecrawl/internal/ssrf"
)

// scriptAdapter lets each test script extract and normalize behavior.
type scriptAdapter struct {
	id        string
	extract   func(content, pageURL string, ctx adapter.Context) adapter.ExtractResult
	normalize func(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult
}

func (a *scriptAdapter) ID() string      { return a.id }
func (a *scriptAdapter) Version() string { return "test-1" }

func (a *scriptAdapter) Extract(content, pageURL string, ctx adapter.Context) adapter.ExtractResult {
	return a.extract(content, pageURL, ctx)
}

func (a *scriptAdapter) Normalize(offer *domain.RawOffer, ctx adapter.Context) adapter.NormalizeResult {
	return a.normalize(offer, ctx)
}

// okAdapter extracts the page body as the title and accepts everything.
func okAdapter(id string) *scriptAdapter {
	return &scriptAdapter{
		id: id,
		extract: func(content, pageURL string, _ adapter.Context) adapter.ExtractResult {
			return adapter.ExtractOK(&domain.RawOffer{
				Title:      strings.TrimSpace(content),
				PriceCents: 1999,
				Currency:   "USD",
				URL:        pageURL,
			})
		},
		normalize: func(offer *domain.RawOffer, _ adapter.Context) adapter.NormalizeResult {
			return adapter.Normalized(&domain.NormalizedOffer{RawOffer: *offer})
		},
	}
}

type recordingSink struct {
	records []domain.QuarantineRecord
}

func (s *recordingSink) Save(_ context.Context, rec domain.QuarantineRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type staticResolver struct{}

func (staticResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

func newTestSession(srv *httptest.Server) *crawl.Session {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}
	client := &http.Client{Transport: transport}

	session := crawl.NewSession(client, crawl.Config{
		UserAgent:    "pricecrawl-test/1.0",
		FetchTimeout: 5 * time.Second,
	}, nil)
	session.Guard = ssrf.NewGuardWithResolver(staticResolver{})
	session.Robots = robots.NewPolicy(client, robots.Config{
		UserAgent:   "pricecrawl-test/1.0",
		BackoffBase: time.Millisecond,
	}, nil)

	return session
}

func newRegistry(t *testing.T, adapters ...adapter.SiteAdapter) *adapter.Registry {
	t.Helper()

	registry := adapter.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}

	return registry
}

func productServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	for path, body := range pages {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}

	return httptest.NewServer(mux)
}

func activeSource() *domain.Source {
	reviewed := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	approver := "compliance-team"

	return &domain.Source{
		ID:              "src-1",
		Name:            "Shop Example",
		BaseURL:         "http://shop.example",
		AdapterID:       "shopex",
		ScrapeEnabled:   true,
		RobotsCompliant: true,
		ToSReviewedAt:   &reviewed,
		ToSApprovedBy:   &approver,
		AdapterEnabled:  true,
	}
}

func TestRunURLs(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "Alpha Ammo 9mm",
	})
	defer srv.Close()

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), nil, nil, nil, nil)

	report, err := h.RunURLs(context.Background(), "shopex",
		[]string{"http://shop.example/products/a"}, Config{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Counts.FetchedOK)
	assert.Equal(t, 1, report.Counts.ExtractOK)
	assert.Equal(t, 1, report.Counts.NormalizedOK)
	require.Len(t, report.Items, 1)

	item := report.Items[0]
	assert.Equal(t, stageDone, item.Stage)
	assert.Equal(t, "ok", item.FetchStatus)
	require.NotNil(t, item.Offer)
	assert.Equal(t, "Alpha Ammo 9mm", item.Offer.Title)
}

func TestRunURLsUnknownAdapter(t *testing.T) {
	h := New(nil, newRegistry(t, okAdapter("shopex")), nil, nil, nil, nil)

	_, err := h.RunURLs(context.Background(), "nope", []string{"http://shop.example/x"}, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRunURLsFetchFailureCounted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	})
	mux.HandleFunc("/products/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), nil, nil, nil, nil)

	report, err := h.RunURLs(context.Background(), "shopex",
		[]string{"http://shop.example/products/gone"}, Config{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.FetchFailed)
	assert.Zero(t, report.Counts.ExtractOK)
	assert.Equal(t, "http-error", report.Items[0].FetchStatus)
}

func TestRunSourceComplianceGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	sources := NewMockSourceGetter(ctrl)
	targets := NewMockTargetSampler(ctrl)

	source := activeSource()
	source.ScrapeEnabled = false
	sources.EXPECT().GetByID(gomock.Any(), "src-1").Return(source, nil)

	h := New(nil, newRegistry(t, okAdapter("shopex")), sources, targets, nil, nil)

	_, err := h.RunSource(context.Background(), Config{SourceID: "src-1", Limit: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComplianceGate)
	assert.Contains(t, err.Error(), "scrape_enabled")
}

func TestRunSourceComplianceOverride(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "Alpha Ammo",
	})
	defer srv.Close()

	ctrl := gomock.NewController(t)
	sources := NewMockSourceGetter(ctrl)
	targets := NewMockTargetSampler(ctrl)

	source := activeSource()
	source.ScrapeEnabled = false
	sources.EXPECT().GetByID(gomock.Any(), "src-1").Return(source, nil)
	targets.EXPECT().ListRecent(gomock.Any(), "src-1", 5).Return([]domain.ScrapeTarget{
		{ID: "t-1", CanonicalURL: "http://shop.example/products/a"},
	}, nil)
	targets.EXPECT().MarkScraped(gomock.Any(), "t-1").Return(nil)

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), sources, targets, nil, nil)

	report, err := h.RunSource(context.Background(), Config{
		SourceID: "src-1",
		Limit:    5,
		Override: true,
	})
	require.NoError(t, err)
	assert.True(t, report.Overridden)
	assert.Equal(t, 1, report.Counts.NormalizedOK)
}

func TestRunSourceRandomSampling(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "Alpha Ammo",
	})
	defer srv.Close()

	ctrl := gomock.NewController(t)
	sources := NewMockSourceGetter(ctrl)
	targets := NewMockTargetSampler(ctrl)

	sources.EXPECT().GetByID(gomock.Any(), "src-1").Return(activeSource(), nil)
	targets.EXPECT().ListRandom(gomock.Any(), "src-1", 3).Return([]domain.ScrapeTarget{
		{ID: "t-1", CanonicalURL: "http://shop.example/products/a"},
	}, nil)
	targets.EXPECT().MarkScraped(gomock.Any(), "t-1").Return(nil)

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), sources, targets, nil, nil)

	report, err := h.RunSource(context.Background(), Config{
		SourceID: "src-1",
		Limit:    3,
		Sampling: SampleRandom,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts.FetchedOK)
	assert.Equal(t, "t-1", report.Items[0].TargetID)
}

func TestRunSourceRobotsBlockedMarksTarget(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "Alpha Ammo",
	})
	defer srv.Close()

	ctrl := gomock.NewController(t)
	sources := NewMockSourceGetter(ctrl)
	targets := NewMockTargetSampler(ctrl)

	sources.EXPECT().GetByID(gomock.Any(), "src-1").Return(activeSource(), nil)
	targets.EXPECT().ListRecent(gomock.Any(), "src-1", 5).Return([]domain.ScrapeTarget{
		{ID: "t-blocked", CanonicalURL: "http://shop.example/private/page"},
		{ID: "t-open", CanonicalURL: "http://shop.example/products/a"},
	}, nil)
	targets.EXPECT().MarkRobotsBlocked(gomock.Any(), "t-blocked", DefaultDisableAfterBlocks).Return(nil)
	targets.EXPECT().MarkScraped(gomock.Any(), "t-open").Return(nil)

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), sources, targets, nil, nil)

	report, err := h.RunSource(context.Background(), Config{SourceID: "src-1", Limit: 5})
	require.NoError(t, err)

	// The blocked target costs one URL, not the batch.
	assert.Equal(t, 1, report.Counts.FetchFailed)
	assert.Equal(t, 1, report.Counts.FetchedOK)
	assert.Equal(t, "robots-disallowed", report.Items[0].FetchStatus)
}

func TestRunURLsAdapterPanicRecovered(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "panic-page",
		"/products/b": "Beta Ammo",
	})
	defer srv.Close()

	site := okAdapter("shopex")
	site.extract = func(content, pageURL string, ctx adapter.Context) adapter.ExtractResult {
		if strings.Contains(content, "panic-page") {
			panic("nil selector")
		}
		return adapter.ExtractOK(&domain.RawOffer{Title: content, PriceCents: 1000, Currency: "USD", URL: pageURL})
	}

	h := New(newTestSession(srv), newRegistry(t, site), nil, nil, nil, nil)

	report, err := h.RunURLs(context.Background(), "shopex", []string{
		"http://shop.example/products/a",
		"http://shop.example/products/b",
	}, Config{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.ExtractFailed)
	assert.Equal(t, 1, report.Counts.NormalizedOK)
	assert.Equal(t, adapter.ReasonException, report.Items[0].Reason)
	assert.Equal(t, stageDone, report.Items[1].Stage)
}

func TestRunURLsQuarantineSink(t *testing.T) {
	srv := productServer(t, map[string]string{
		"/products/a": "Suspicious Ammo",
	})
	defer srv.Close()

	site := okAdapter("shopex")
	site.normalize = func(_ *domain.RawOffer, _ adapter.Context) adapter.NormalizeResult {
		return adapter.Quarantine(adapter.ReasonPriceSuspect)
	}

	sink := &recordingSink{}
	h := New(newTestSession(srv), newRegistry(t, site), nil, nil, sink, nil)

	report, err := h.RunURLs(context.Background(), "shopex",
		[]string{"http://shop.example/products/a"}, Config{RunID: "run-42"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.Quarantined)
	require.Len(t, sink.records, 1)

	rec := sink.records[0]
	assert.Equal(t, "run-42", rec.RunID)
	assert.Equal(t, adapter.ReasonPriceSuspect, rec.Reason)
	assert.Equal(t, "shopex", rec.AdapterID)
	assert.Equal(t, "test-1", rec.AdapterVersion)
	require.NotNil(t, rec.Offer)
	assert.Equal(t, "Suspicious Ammo", rec.Offer.Title)
	assert.NotEmpty(t, rec.ID)
}

func TestRunURLsRobotsUnavailableAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := New(newTestSession(srv), newRegistry(t, okAdapter("shopex")), nil, nil, nil, nil)

	_, err := h.RunURLs(context.Background(), "shopex",
		[]string{"http://shop.example/products/a"}, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawl.ErrRobotsUnavailable)
}

func TestRunSourceValidation(t *testing.T) {
	h := New(nil, newRegistry(t, okAdapter("shopex")), nil, nil, nil, nil)

	_, err := h.RunSource(context.Background(), Config{SourceID: "src-1", Limit: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repositories")

	ctrl := gomock.NewController(t)
	h = New(nil, newRegistry(t, okAdapter("shopex")),
		NewMockSourceGetter(ctrl), NewMockTargetSampler(ctrl), nil, nil)

	_, err = h.RunSource(context.Background(), Config{Limit: 5})
	require.Error(t, err)

	_, err = h.RunSource(context.Background(), Config{SourceID: "src-1"})
	require.Error(t, err)
}
