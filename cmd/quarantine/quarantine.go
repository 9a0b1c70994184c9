// Package quarantine implements the review commands for quarantined offers.
package quarantine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/quarantine"
)

// Command creates the quarantine command group.
func Command(root *common.RootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Review offers flagged during normalization",
	}

	cmd.AddCommand(listCommand(root))
	cmd.AddCommand(reviewCommand(root))

	return cmd
}

func openStore(cmd *cobra.Command, root *common.RootFlags) (*quarantine.Store, error) {
	deps, err := root.Build()
	if err != nil {
		return nil, err
	}

	store, err := deps.NewQuarantineStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("the review store is disabled; set elasticsearch.enabled")
	}

	if err := store.EnsureIndex(cmd.Context()); err != nil {
		return nil, err
	}

	return store, nil
}

func listCommand(root *common.RootFlags) *cobra.Command {
	var (
		sourceID string
		reason   string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quarantined offers, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd, root)
			if err != nil {
				return err
			}

			records, err := store.List(cmd.Context(), quarantine.ListFilter{
				SourceID: sourceID,
				Reason:   reason,
				Status:   strings.ToUpper(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No quarantined offers match")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Reason", "Status", "URL", "Title", "Quarantined"})
			for i := range records {
				rec := &records[i]

				title := ""
				if rec.Offer != nil {
					title = rec.Offer.Title
				}

				t.AppendRow(table.Row{
					rec.ID,
					rec.Reason,
					rec.Status,
					rec.URL,
					title,
					rec.QuarantinedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "filter by source id")
	cmd.Flags().StringVar(&reason, "reason", "", "filter by reason code")
	cmd.Flags().StringVar(&status, "status", domain.QuarantinePending, "filter by review status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")

	return cmd
}

func reviewCommand(root *common.RootFlags) *cobra.Command {
	var (
		resolve  bool
		reject   bool
		reviewer string
	)

	cmd := &cobra.Command{
		Use:   "review <record-id>",
		Short: "Mark a quarantined offer resolved or rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolve == reject {
				return errors.New("pass exactly one of --resolve or --reject")
			}

			store, err := openStore(cmd, root)
			if err != nil {
				return err
			}

			status := domain.QuarantineResolved
			if reject {
				status = domain.QuarantineRejected
			}

			if err := store.Review(cmd.Context(), args[0], status, reviewer); err != nil {
				return err
			}

			fmt.Printf("record %s marked %s\n", args[0], status)

			return nil
		},
	}

	cmd.Flags().BoolVar(&resolve, "resolve", false, "mark the record resolved")
	cmd.Flags().BoolVar(&reject, "reject", false, "mark the record rejected")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "who reviewed the record")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}
