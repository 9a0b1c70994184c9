// Package sources implements the source registry inspection commands.
package sources

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/domain"
)

// Command creates the sources command group.
func Command(root *common.RootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect registered sources and their compliance state",
	}

	cmd.AddCommand(listCommand(root))
	cmd.AddCommand(showCommand(root))

	return cmd
}

func listCommand(root *common.RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sources with their compliance gates",
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

			sources, err := database.NewSourceRepository(db).List(cmd.Context())
			if err != nil {
				return err
			}

			if len(sources) == 0 {
				fmt.Println("No sources registered")
				return nil
			}

			renderSources(sources)

			return nil
		},
	}
}

func showCommand(root *common.RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <source-id>",
		Short: "Show one source's full compliance state",
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

			source, err := database.NewSourceRepository(db).GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRow(table.Row{"ID", source.ID})
			t.AppendRow(table.Row{"Name", source.Name})
			t.AppendRow(table.Row{"Base URL", source.BaseURL})
			t.AppendRow(table.Row{"Adapter", source.AdapterID})
			t.AppendRow(table.Row{"Scrape enabled", source.ScrapeEnabled})
			t.AppendRow(table.Row{"Robots compliant", source.RobotsCompliant})
			t.AppendRow(table.Row{"ToS reviewed", formatTimePtr(source.ToSReviewedAt)})
			t.AppendRow(table.Row{"ToS approved by", formatStrPtr(source.ToSApprovedBy)})
			t.AppendRow(table.Row{"Adapter enabled", source.AdapterEnabled})
			t.AppendRow(table.Row{"Ingestion paused", source.IngestionPaused})
			t.AppendRow(table.Row{"Max discovery URLs", source.MaxDiscoveryURLs})
			t.Render()

			if failure := source.ComplianceFailure(); failure != "" {
				fmt.Printf("compliance: BLOCKED (%s)\n", failure)
			} else {
				fmt.Println("compliance: OK")
			}

			return nil
		},
	}
}

func renderSources(sources []domain.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Adapter", "Scrape", "Robots", "ToS", "Compliance"})

	for i := range sources {
		source := &sources[i]

		status := "OK"
		if failure := source.ComplianceFailure(); failure != "" {
			status = "BLOCKED: " + failure
		}

		t.AppendRow(table.Row{
			source.ID,
			source.Name,
			source.AdapterID,
			source.ScrapeEnabled,
			source.RobotsCompliant,
			source.ToSReviewedAt != nil,
			status,
		})
	}

	t.Render()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}

	return t.Format("2006-01-02")
}

func formatStrPtr(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
