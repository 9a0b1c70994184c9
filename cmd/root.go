// Package cmd implements the pricecrawl command-line interface: target
// discovery, adapter dry runs, visibility recompute, and the registry
// maintenance commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/cmd/discover"
	"github.com/openrounds/pricecrawl/cmd/dryrun"
	"github.com/openrounds/pricecrawl/cmd/quarantine"
	"github.com/openrounds/pricecrawl/cmd/recompute"
	cmdscheduler "github.com/openrounds/pricecrawl/cmd/scheduler"
	cmdsources "github.com/openrounds/pricecrawl/cmd/sources"
	"github.com/openrounds/pricecrawl/cmd/targets"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	rootFlags = &common.RootFlags{}

	rootCmd = &cobra.Command{
		Use:   "pricecrawl",
		Short: "Policy-gated price ingestion for the openrounds marketplace",
		Long: `pricecrawl discovers retailer product pages, runs site adapters
against them without writing prices, and keeps scraped-price visibility in
line with each source's compliance state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.ConfigFile, "config", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("pricecrawl version %s\n", Version)
		},
	})

	rootCmd.AddCommand(discover.Command(rootFlags))
	rootCmd.AddCommand(dryrun.Command(rootFlags))
	rootCmd.AddCommand(recompute.Command(rootFlags))
	rootCmd.AddCommand(cmdsources.Command(rootFlags))
	rootCmd.AddCommand(targets.Command(rootFlags))
	rootCmd.AddCommand(quarantine.Command(rootFlags))
	rootCmd.AddCommand(cmdscheduler.Command(rootFlags))
}
