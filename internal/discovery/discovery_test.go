package discovery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrounds/pricecrawl/internal/crawl"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/robots"
	"github.com/openrounds/pricecrawl/internal/ssrf"
)

const testSourceURL = "http://shop.example"

// staticResolver answers every lookup with a public address so hostname
// validation passes without real DNS.
type staticResolver struct{}

func (staticResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

// fakeWriter records upserted targets.
type fakeWriter struct {
	targets  []domain.ScrapeTarget
	calls    int
	inserted int
	err      error
}

func (w *fakeWriter) UpsertBatch(_ context.Context, targets []domain.ScrapeTarget) (int, error) {
	w.calls++
	w.targets = append(w.targets, targets...)
	if w.err != nil {
		return 0, w.err
	}

	return w.inserted, nil
}

// newTestSession builds a crawl session whose HTTP traffic is redirected to
// srv regardless of the requested host, so tests can use stable hostnames.
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

func baseConfig(mode Mode) Config {
	return Config{
		SourceID:      "src-1",
		AdapterID:     "brasstacks",
		SourceURL:     testSourceURL,
		Seeds:         []Seed{{URL: testSourceURL + "/sitemap.xml", Kind: SeedSitemap}},
		Filter:        Filter{PathPrefix: "/products/"},
		Mode:          mode,
		SourceMaxURLs: 100,
	}
}

func allowAllRobots(mux *http.ServeMux) {
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	})
}

func TestRunSitemapSeed(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://shop.example/products/ammo-9mm</loc></url>
  <url><loc>http://shop.example/products/ammo-9mm?utm_source=feed</loc></url>
  <url><loc>http://shop.example/about</loc></url>
  <url><loc>http://shop.example/products/ammo-556</loc></url>
</urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeDryRun))
	require.NoError(t, err)

	assert.Equal(t, 1, report.SeedsScanned)
	assert.Equal(t, 4, report.CandidatesSeen)
	assert.Equal(t, []string{
		"https://shop.example/products/ammo-9mm",
		"https://shop.example/products/ammo-556",
	}, report.Accepted)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Rejected[rejectPatternMiss])
	assert.Zero(t, report.Inserted)
}

func TestRunSitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>http://shop.example/sitemap-a.xml</loc></sitemap>
  <sitemap><loc>http://shop.example/sitemap-b.xml</loc></sitemap>
</sitemapindex>`))
	})
	mux.HandleFunc("/sitemap-a.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>http://shop.example/products/a</loc></url></urlset>`))
	})
	mux.HandleFunc("/sitemap-b.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>http://shop.example/products/b</loc></url></urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeDryRun))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://shop.example/products/a",
		"https://shop.example/products/b",
	}, report.Accepted)
}

func TestRunSitemapIndexDepthLimit(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	index := func(child string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<sitemapindex><sitemap><loc>` + child + `</loc></sitemap></sitemapindex>`))
		}
	}
	mux.HandleFunc("/sitemap.xml", index("http://shop.example/level1.xml"))
	mux.HandleFunc("/level1.xml", index("http://shop.example/level2.xml"))
	mux.HandleFunc("/level2.xml", index("http://shop.example/level3.xml"))
	mux.HandleFunc("/level3.xml", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("sitemap fetched past the depth limit")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeDryRun))
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
}

func TestRunListingSeed(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/ammo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a href="/products/one">One</a>
<a href="products/two">Two</a>
<a href="http://shop.example/products/three">Three</a>
<a href="http://other.example/products/elsewhere">Elsewhere</a>
<a href="javascript:void(0)">Menu</a>
<a href="mailto:sales@shop.example">Email</a>
<a href="/cart">Cart</a>
</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := baseConfig(ModeDryRun)
	cfg.Seeds = []Seed{{URL: testSourceURL + "/ammo", Kind: SeedListing}}

	engine := NewEngine(newTestSession(srv), nil, nil)
	report, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://shop.example/products/one",
		"https://shop.example/products/two",
		"https://shop.example/products/three",
	}, report.Accepted)
	assert.Equal(t, 1, report.Rejected[rejectCrossDomain])
	assert.Equal(t, 1, report.Rejected[rejectPatternMiss])
	// javascript: and mailto: links are dropped inside the listing scan and
	// never become candidates.
	assert.Zero(t, report.Rejected[rejectControlScheme])
}

func TestRunRobotsDisallowedSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /products/blocked\n"))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset>
  <url><loc>http://shop.example/products/open</loc></url>
  <url><loc>http://shop.example/products/blocked</loc></url>
</urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeDryRun))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://shop.example/products/open"}, report.Accepted)
	assert.Equal(t, 1, report.RobotsSkipped)
	assert.Equal(t, 1, report.Rejected[rejectRobots])
}

func TestRunRobotsUnavailableAborts(t *testing.T) {
	// The sitemap seed itself goes through the gated fetch, which checks
	// robots first, so an unreachable robots.txt aborts before any page is
	// fetched.
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		_ = conn.Close()
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("sitemap fetched despite unreachable robots.txt")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)
	_, err := engine.Run(context.Background(), baseConfig(ModeDryRun))
	require.Error(t, err)
	assert.ErrorIs(t, err, crawl.ErrRobotsUnavailable)
}

func TestRunCapExceededAbortsWithoutWrites(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset>
  <url><loc>http://shop.example/products/p1</loc></url>
  <url><loc>http://shop.example/products/p2</loc></url>
  <url><loc>http://shop.example/products/p3</loc></url>
  <url><loc>http://shop.example/products/p4</loc></url>
  <url><loc>http://shop.example/products/p5</loc></url>
</urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writer := &fakeWriter{inserted: 5}
	cfg := baseConfig(ModeAccept)
	cfg.SourceMaxURLs = 10
	cfg.MaxURLs = 3

	engine := NewEngine(newTestSession(srv), writer, nil)
	_, err := engine.Run(context.Background(), cfg)
	require.Error(t, err)

	var capErr *CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.EffectiveCap)
	assert.Equal(t, 10, capErr.ConfiguredCap)
	assert.Equal(t, 3, capErr.RequestedCap)
	assert.Equal(t, 5, capErr.Attempted)
	assert.Contains(t, capErr.Error(), "raise")

	assert.Zero(t, writer.calls, "cap overflow must not write targets")
}

func TestRunAcceptPersistsTargets(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset>
  <url><loc>http://shop.example/products/p1</loc></url>
  <url><loc>http://shop.example/products/p2</loc></url>
</urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writer := &fakeWriter{inserted: 2}
	engine := NewEngine(newTestSession(srv), writer, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeAccept))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	require.Len(t, writer.targets, 2)
	first := writer.targets[0]
	assert.Equal(t, "https://shop.example/products/p1", first.CanonicalURL)
	assert.Equal(t, "src-1", first.SourceID)
	assert.Equal(t, "brasstacks", first.AdapterID)
	assert.True(t, first.Enabled)
	assert.Equal(t, domain.TargetStatusActive, first.Status)
	assert.Equal(t, domain.TargetCreatedByDiscovery, first.CreatedBy)
}

func TestRunCountOnlyDoesNotWrite(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>http://shop.example/products/p1</loc></url></urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writer := &fakeWriter{}
	engine := NewEngine(newTestSession(srv), writer, nil)
	report, err := engine.Run(context.Background(), baseConfig(ModeCountOnly))
	require.NoError(t, err)

	assert.Len(t, report.Accepted, 1)
	assert.Zero(t, writer.calls)
	assert.Zero(t, report.Inserted)
}

func TestRunSeedValidation(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := NewEngine(newTestSession(srv), nil, nil)

	t.Run("cross-domain seed aborts", func(t *testing.T) {
		cfg := baseConfig(ModeDryRun)
		cfg.Seeds = []Seed{{URL: "http://other.example/sitemap.xml", Kind: SeedSitemap}}

		_, err := engine.Run(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not on the source's domain")
	})

	t.Run("metadata-address seed aborts", func(t *testing.T) {
		cfg := baseConfig(ModeDryRun)
		cfg.Seeds = []Seed{{URL: "http://169.254.169.254/latest/meta-data", Kind: SeedSitemap}}

		_, err := engine.Run(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed rejected")
	})
}

func TestRunConfigValidation(t *testing.T) {
	engine := NewEngine(nil, nil, nil)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source id", func(c *Config) { c.SourceID = "" }},
		{"missing seeds", func(c *Config) { c.Seeds = nil }},
		{"missing filter", func(c *Config) { c.Filter = Filter{} }},
		{"both filters set", func(c *Config) { c.Filter.URLRegex = regexp.MustCompile(`/products/`) }},
		{"unknown mode", func(c *Config) { c.Mode = "apply" }},
		{"zero source cap", func(c *Config) { c.SourceMaxURLs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(ModeDryRun)
			tt.mutate(&cfg)

			_, err := engine.Run(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunAcceptWriterError(t *testing.T) {
	mux := http.NewServeMux()
	allowAllRobots(mux)
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>http://shop.example/products/p1</loc></url></urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	writer := &fakeWriter{err: errors.New("connection refused")}
	engine := NewEngine(newTestSession(srv), writer, nil)
	_, err := engine.Run(context.Background(), baseConfig(ModeAccept))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist targets")
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		url    string
		want   bool
	}{
		{"prefix hit", Filter{PathPrefix: "/products/"}, "https://shop.example/products/x", true},
		{"prefix miss", Filter{PathPrefix: "/products/"}, "https://shop.example/pages/x", false},
		{"regex hit", Filter{URLRegex: regexp.MustCompile(`/p/\d+`)}, "https://shop.example/p/123", true},
		{"regex miss", Filter{URLRegex: regexp.MustCompile(`/p/\d+`)}, "https://shop.example/p/abc", false},
		{"malformed url", Filter{PathPrefix: "/products/"}, "::bad::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.url))
		})
	}
}
