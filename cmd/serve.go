// File: cmd/serve.go
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/droidpilot/internal/intent"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/oracle"
	"github.com/xkilldash9x/droidpilot/internal/orchestrator"
	"github.com/xkilldash9x/droidpilot/internal/planner"
	"github.com/xkilldash9x/droidpilot/internal/server"
	"github.com/xkilldash9x/droidpilot/internal/supervisor"
	"github.com/xkilldash9x/droidpilot/internal/verifier"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the automation backend HTTP server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gateway, err := oracle.New(ctx, cfg.Oracle, logger)
		if err != nil {
			return fmt.Errorf("failed to build oracle gateway: %w", err)
		}

		res := intent.NewResolver(gateway, logger)
		plnr := planner.NewPlanner(gateway, cfg.Planner, logger)
		vrf := verifier.NewVerifier(gateway, logger)

		sup, err := supervisor.NewSupervisor(plnr, vrf, cfg.Supervisor, logger)
		if err != nil {
			return fmt.Errorf("failed to build supervisor: %w", err)
		}

		orch := orchestrator.NewOrchestrator(res, plnr, vrf, sup, logger)
		return server.New(cfg.Server, orch, logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
