// Package recompute implements the scraped-price visibility recompute
// command.
package recompute

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/visibility"
)

type options struct {
	mode     string
	sourceID string
	label    string
}

// Command creates the recompute command.
func Command(root *common.RootFlags) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute scraped-price visibility from source compliance state",
		Long: `Recompute re-derives the visible flag for every scraped price from the
current compliance state of its source. Prices from feed or manual ingestion
are never touched. Run it after changing a source's compliance fields.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(visibility.ModeFull), "full or source")
	cmd.Flags().StringVar(&opts.sourceID, "source", "", "source id for --mode source")
	cmd.Flags().StringVar(&opts.label, "label", "manual", "run label recorded in logs")

	return cmd
}

func run(cmd *cobra.Command, root *common.RootFlags, opts *options) error {
	deps, err := root.Build()
	if err != nil {
		return err
	}

	db, err := deps.OpenDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	recomputer := visibility.New(
		database.NewPriceRepository(db),
		database.NewSourceRepository(db),
		deps.Logger,
	)

	summary, err := recomputer.Recompute(cmd.Context(),
		visibility.Mode(opts.mode), opts.sourceID, opts.label)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Mode", summary.Mode})
	if summary.Scope != "" {
		t.AppendRow(table.Row{"Scope", summary.Scope})
	}
	t.AppendRow(table.Row{"Examined", summary.Examined})
	t.AppendRow(table.Row{"Shown", summary.Shown})
	t.AppendRow(table.Row{"Hidden", summary.Hidden})
	t.AppendRow(table.Row{"Unchanged", summary.Unchanged})
	t.Render()

	fmt.Printf("recompute %q finished in %s\n",
		summary.RunLabel, summary.FinishedAt.Sub(summary.StartedAt))

	return nil
}
