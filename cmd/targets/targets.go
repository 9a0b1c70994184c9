// Package targets implements the scrape-target maintenance commands.
package targets

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// Command creates the targets command group.
func Command(root *common.RootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Inspect and maintain scrape targets",
	}

	cmd.AddCommand(listCommand(root))
	cmd.AddCommand(disableCommand(root))

	return cmd
}

func listCommand(root *common.RootFlags) *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a source's scrape targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := root.Build()
			if err != nil {
				return err
			}

			db, err := deps.OpenDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			repo := database.NewTargetRepository(db)
			targets, err := repo.ListBySource(cmd.Context(), sourceID)
			if err != nil {
				return err
			}

			if len(targets) == 0 {
				fmt.Println("No targets for source", sourceID)
				return nil
			}

			renderTargets(targets)

			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "source id (required)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func disableCommand(root *common.RootFlags) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "disable <target-id>",
		Short: "Disable a target (targets are never deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := root.Build()
			if err != nil {
				return err
			}

			db, err := deps.OpenDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.NewTargetRepository(db).Disable(cmd.Context(), args[0], note); err != nil {
				return err
			}

			fmt.Println("disabled target", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "why the target is being disabled")

	return cmd
}

func renderTargets(targets []domain.ScrapeTarget) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Canonical URL", "Status", "Robots blocks", "Last scraped"})

	for i := range targets {
		target := &targets[i]

		lastScraped := "never"
		if target.LastScrapedAt != nil {
			lastScraped = target.LastScrapedAt.Format("2006-01-02 15:04")
		}

		t.AppendRow(table.Row{
			target.ID,
			target.CanonicalURL,
			target.Status,
			target.RobotsBlockCount,
			lastScraped,
		})
	}

	t.Render()
}
