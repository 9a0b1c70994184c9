// Package dryrun implements the adapter dry-run command: fetch, extract,
// and normalize without writing prices.
package dryrun

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/adapter/sites"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/harness"
)

type options struct {
	adapterID string
	urls      []string
	urlFile   string
	sourceID  string
	limit     int
	sample    string
	delayMs   int
	override  bool
	jsonOut   bool
	verbose   bool
}

// Command creates the dry-run command.
func Command(root *common.RootFlags) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dryrun",
		Short: "Run a site adapter against live pages without writing prices",
		Long: `Dryrun exercises an adapter end to end: it fetches pages through the
SSRF, robots, and rate-limit gates, extracts and normalizes offers, and
prints per-stage counters with failure reasons. Nothing is written to the
price tables.

Give either an explicit URL list with --adapter-id plus --url or --url-file,
or a stored source with --source-id to sample its targets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.adapterID, "adapter-id", "", "adapter id for URL-list mode")
	cmd.Flags().StringArrayVar(&opts.urls, "url", nil, "page URL to process (repeatable)")
	cmd.Flags().StringVar(&opts.urlFile, "url-file", "", "file with one page URL per line")
	cmd.Flags().StringVar(&opts.sourceID, "source-id", "", "source id to sample targets from")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "how many targets to sample")
	cmd.Flags().StringVar(&opts.sample, "sample", string(harness.SampleLatest), "latest or random")
	cmd.Flags().IntVar(&opts.delayMs, "delay-ms", 0,
		"per-domain delay floor in milliseconds (0 uses the configured floor)")
	cmd.Flags().BoolVar(&opts.override, "override-compliance", false,
		"run even when the source fails its compliance gates (logged)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the report as JSON")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print a line per processed URL")

	return cmd
}

func run(cmd *cobra.Command, root *common.RootFlags, opts *options) error {
	urls, err := gatherURLs(opts)
	if err != nil {
		return err
	}
	if (len(urls) == 0) == (opts.sourceID == "") {
		return errors.New("give either --url/--url-file (with --adapter-id) or --source-id")
	}

	deps, err := root.Build()
	if err != nil {
		return err
	}

	session, err := deps.NewSession(time.Duration(opts.delayMs) * time.Millisecond)
	if err != nil {
		return err
	}

	registry := adapter.NewRegistry()
	sites.RegisterAll(registry)

	quarStore, err := deps.NewQuarantineStore()
	if err != nil {
		return err
	}

	var sink harness.QuarantineSink
	if quarStore != nil {
		if err := quarStore.EnsureIndex(cmd.Context()); err != nil {
			return err
		}
		sink = quarStore
	}

	var report *harness.Report

	if len(urls) > 0 {
		if opts.adapterID == "" {
			return errors.New("URL-list mode requires --adapter-id")
		}

		h := harness.New(session, registry, nil, nil, sink, deps.Logger)
		report, err = h.RunURLs(cmd.Context(), opts.adapterID, urls, harness.Config{})
	} else {
		conn, dbErr := deps.OpenDatabase(cmd.Context())
		if dbErr != nil {
			return dbErr
		}
		defer conn.Close()

		h := harness.New(session, registry,
			database.NewSourceRepository(conn),
			database.NewTargetRepository(conn),
			sink, deps.Logger)
		report, err = h.RunSource(cmd.Context(), harness.Config{
			SourceID:           opts.sourceID,
			Limit:              opts.limit,
			Sampling:           harness.Sampling(opts.sample),
			Override:           opts.override,
			DisableAfterBlocks: deps.Config.Crawl.DisableAfterBlocks,
		})
	}
	if err != nil {
		return err
	}

	if opts.jsonOut {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	renderReport(report, opts.verbose)

	return nil
}

// gatherURLs merges --url values with the lines of --url-file. Blank lines
// and #-comments in the file are skipped.
func gatherURLs(opts *options) ([]string, error) {
	urls := opts.urls

	if opts.urlFile != "" {
		f, err := os.Open(opts.urlFile)
		if err != nil {
			return nil, fmt.Errorf("open url file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read url file: %w", err)
		}
	}

	return urls, nil
}

func renderReport(report *harness.Report, verbose bool) {
	if verbose {
		for _, item := range report.Items {
			line := fmt.Sprintf("%s  fetch=%s stage=%s", item.URL, item.FetchStatus, item.Stage)
			if item.Reason != "" {
				line += " reason=" + item.Reason
			}
			if item.Offer != nil {
				line += fmt.Sprintf(" price=%d %s", item.Offer.PriceCents, item.Offer.Currency)
			}
			fmt.Println(line)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Count"})
	t.AppendRow(table.Row{"Fetched OK", report.Counts.FetchedOK})
	t.AppendRow(table.Row{"Fetch failed", report.Counts.FetchFailed})
	t.AppendRow(table.Row{"Extract OK", report.Counts.ExtractOK})
	t.AppendRow(table.Row{"Extract failed", report.Counts.ExtractFailed})
	t.AppendRow(table.Row{"Normalized OK", report.Counts.NormalizedOK})
	t.AppendRow(table.Row{"Dropped", report.Counts.Dropped})
	t.AppendRow(table.Row{"Quarantined", report.Counts.Quarantined})
	t.Render()

	if len(report.Reasons) > 0 {
		r := table.NewWriter()
		r.SetOutputMirror(os.Stdout)
		r.SetStyle(table.StyleLight)
		r.AppendHeader(table.Row{"Stage", "Reason", "Count"})
		for _, reason := range report.Reasons {
			r.AppendRow(table.Row{reason.Stage, reason.Reason, reason.Count})
		}
		r.Render()
	}

	fmt.Printf("run %s finished in %s (%d urls)\n",
		report.RunID, report.Elapsed.Round(time.Millisecond), len(report.Items))
	if report.Overridden {
		fmt.Println("NOTE: compliance gate was overridden for this run")
	}
}
