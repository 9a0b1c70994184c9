// Package discover implements the target discovery command.
package discover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/discovery"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/urlkit"
)

type options struct {
	sourceID  string
	domain    string
	sourceURL string

	sitemaps []string
	listings []string

	pathPrefix string
	urlRegex   string

	countOnly bool
	dryRun    bool
	accept    bool

	autoSitemap bool
	maxURLs     int
	logURLs     bool
}

// Command creates the discover command.
func Command(root *common.RootFlags) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate candidate product URLs for a source",
		Long: `Discover walks a source's sitemaps and listing pages, filters the
URLs down to product pages, and reports or stores them as scrape targets.

Select the source with --source-id or --domain (stored sources), or with
--source-url for an ad-hoc run against an unregistered site. Ad-hoc runs
require --max-urls and cannot use --accept.

By default nothing is written; pass --accept to persist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sourceID, "source-id", "", "stored source id")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "stored source domain, e.g. shop.example.com")
	cmd.Flags().StringVar(&opts.sourceURL, "source-url", "", "base URL for an ad-hoc run")
	cmd.Flags().StringArrayVar(&opts.sitemaps, "sitemap", nil, "sitemap seed URL (repeatable)")
	cmd.Flags().StringArrayVar(&opts.listings, "listing", nil, "listing page seed URL (repeatable)")
	cmd.Flags().StringVar(&opts.pathPrefix, "product-path-prefix", "", "product URL path prefix filter")
	cmd.Flags().StringVar(&opts.urlRegex, "product-url-regex", "", "product URL regex filter")
	cmd.Flags().BoolVar(&opts.countOnly, "count-only", false, "report totals only (default)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "compute the full result set, write nothing")
	cmd.Flags().BoolVar(&opts.accept, "accept", false, "persist accepted URLs as scrape targets")
	cmd.Flags().BoolVar(&opts.autoSitemap, "auto-sitemap", false,
		"also seed the well-known /sitemap.xml location")
	cmd.Flags().IntVar(&opts.maxURLs, "max-urls", 0, "cap for this run (0 uses the source's configured cap)")
	cmd.Flags().BoolVar(&opts.logURLs, "log-urls", false, "log every accepted URL")

	return cmd
}

func run(cmd *cobra.Command, root *common.RootFlags, opts *options) error {
	mode, err := resolveMode(opts)
	if err != nil {
		return err
	}

	var urlRegex *regexp.Regexp
	if opts.urlRegex != "" {
		urlRegex, err = regexp.Compile(opts.urlRegex)
		if err != nil {
			return fmt.Errorf("invalid --product-url-regex: %w", err)
		}
	}

	deps, err := root.Build()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	source, writer, cleanup, err := resolveSource(ctx, deps, opts, mode)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	session, err := deps.NewSession(0)
	if err != nil {
		return err
	}

	seeds := buildSeeds(opts, source.BaseURL)

	engine := discovery.NewEngine(session, writer, deps.Logger)
	report, err := engine.Run(ctx, discovery.Config{
		SourceID:  source.ID,
		AdapterID: source.AdapterID,
		SourceURL: source.BaseURL,
		Seeds:     seeds,
		Filter: discovery.Filter{
			PathPrefix: opts.pathPrefix,
			URLRegex:   urlRegex,
		},
		Mode:          mode,
		MaxURLs:       opts.maxURLs,
		SourceMaxURLs: source.MaxDiscoveryURLs,
		LogURLs:       opts.logURLs,
	})
	if report != nil {
		renderReport(report)
	}
	if err != nil {
		var capErr *discovery.CapExceededError
		if errors.As(err, &capErr) {
			fmt.Fprintln(os.Stderr, capErr.Error())
		}
		return err
	}

	return nil
}

func resolveMode(opts *options) (discovery.Mode, error) {
	set := 0
	for _, b := range []bool{opts.countOnly, opts.dryRun, opts.accept} {
		if b {
			set++
		}
	}
	if set > 1 {
		return "", errors.New("--count-only, --dry-run, and --accept are mutually exclusive")
	}

	switch {
	case opts.dryRun:
		return discovery.ModeDryRun, nil
	case opts.accept:
		return discovery.ModeAccept, nil
	default:
		return discovery.ModeCountOnly, nil
	}
}

// resolveSource loads the stored source for --source-id and --domain, or
// synthesizes an ad-hoc one for --source-url. Ad-hoc runs have no stored cap
// and no target writer, so they require --max-urls and refuse --accept.
func resolveSource(
	ctx context.Context,
	deps *common.Deps,
	opts *options,
	mode discovery.Mode,
) (*domain.Source, discovery.TargetWriter, func(), error) {
	selectors := 0
	for _, s := range []string{opts.sourceID, opts.domain, opts.sourceURL} {
		if s != "" {
			selectors++
		}
	}
	if selectors != 1 {
		return nil, nil, nil, errors.New("give exactly one of --source-id, --domain, --source-url")
	}

	if opts.sourceURL != "" {
		if mode == discovery.ModeAccept {
			return nil, nil, nil, errors.New("--accept requires a stored source, not --source-url")
		}
		if opts.maxURLs <= 0 {
			return nil, nil, nil, errors.New("--source-url runs require --max-urls")
		}

		return &domain.Source{
			ID:               "adhoc",
			AdapterID:        "adhoc",
			BaseURL:          opts.sourceURL,
			MaxDiscoveryURLs: opts.maxURLs,
		}, nil, nil, nil
	}

	db, err := deps.OpenDatabase(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	sources := database.NewSourceRepository(db)

	var source *domain.Source
	if opts.sourceID != "" {
		source, err = sources.GetByID(ctx, opts.sourceID)
	} else {
		var dom string
		dom, err = urlkit.HostToDomain(opts.domain)
		if err == nil {
			source, err = sources.GetByDomain(ctx, dom)
		}
	}
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	return source, database.NewTargetRepository(db), func() { db.Close() }, nil
}

func buildSeeds(opts *options, baseURL string) []discovery.Seed {
	sitemaps := opts.sitemaps
	if opts.autoSitemap {
		wellKnown := strings.TrimRight(baseURL, "/") + "/sitemap.xml"
		known := false
		for _, u := range sitemaps {
			if u == wellKnown {
				known = true
				break
			}
		}
		if !known {
			sitemaps = append(sitemaps, wellKnown)
		}
	}

	var seeds []discovery.Seed
	for _, u := range sitemaps {
		seeds = append(seeds, discovery.Seed{URL: u, Kind: discovery.SeedSitemap})
	}
	for _, u := range opts.listings {
		seeds = append(seeds, discovery.Seed{URL: u, Kind: discovery.SeedListing})
	}

	return seeds
}

func renderReport(report *discovery.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Mode", report.Mode})
	t.AppendRow(table.Row{"Seeds scanned", report.SeedsScanned})
	t.AppendRow(table.Row{"Candidates seen", report.CandidatesSeen})
	t.AppendRow(table.Row{"Accepted", len(report.Accepted)})
	t.AppendRow(table.Row{"Duplicates", report.Duplicates})
	t.AppendRow(table.Row{"Robots skipped", report.RobotsSkipped})
	reasons := make([]string, 0, len(report.Rejected))
	for reason := range report.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		t.AppendRow(table.Row{"Rejected: " + reason, report.Rejected[reason]})
	}
	if report.Mode == discovery.ModeAccept {
		t.AppendRow(table.Row{"Inserted", report.Inserted})
	}

	t.Render()
}
