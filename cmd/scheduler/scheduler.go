// Package scheduler implements the long-running scheduler command.
package scheduler

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrounds/pricecrawl/cmd/common"
	"github.com/openrounds/pricecrawl/internal/adapter"
	"github.com/openrounds/pricecrawl/internal/adapter/sites"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/harness"
	"github.com/openrounds/pricecrawl/internal/scheduler"
	"github.com/openrounds/pricecrawl/internal/visibility"
)

// Command creates the scheduler command.
func Command(root *common.RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run periodic smoke runs and the nightly visibility recompute",
		Long: `Scheduler runs until interrupted. On each smoke tick it samples a few
targets per compliant source through the dry-run harness; on each recompute
tick it re-derives scraped-price visibility. Sources failing their
compliance gates are skipped, never overridden.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root)
		},
	}
}

func run(cmd *cobra.Command, root *common.RootFlags) error {
	deps, err := root.Build()
	if err != nil {
		return err
	}

	db, err := deps.OpenDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := deps.NewSession(0)
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

	sourceRepo := database.NewSourceRepository(db)
	targetRepo := database.NewTargetRepository(db)

	h := harness.New(session, registry, sourceRepo, targetRepo, sink, deps.Logger)
	recomputer := visibility.New(database.NewPriceRepository(db), sourceRepo, deps.Logger)

	s := scheduler.New(scheduler.Config{
		SmokeCron:     deps.Config.Scheduler.SmokeCron,
		SmokeLimit:    deps.Config.Scheduler.SmokeLimit,
		RecomputeCron: deps.Config.Scheduler.RecomputeCron,
	}, h, recomputer, sourceRepo, deps.Logger)

	if err := s.Start(cmd.Context()); err != nil {
		return err
	}
	defer s.Stop()

	deps.Logger.Info("scheduler running, press ctrl-c to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-cmd.Context().Done():
	}

	deps.Logger.Info("shutting down")

	return nil
}
