package main

import (
	"context"
	"fmt"

	"github.com/erp/billing/internal/bootstrap"
	"github.com/erp/billing/internal/infrastructure/config"
	"github.com/erp/billing/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "billingctl",
		Short: "Operate the billing ledger from the command line",
		Long: `billingctl reads the same config.toml, .env and BILLING_* environment
variables as the server and works directly on the ledger database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newGenerateCmd(), newSummaryCmd(), newExportCmd())
	return root
}

// withApp loads configuration, builds the ledger and runs fn with it
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	level, _ := cmd.Flags().GetString("log-level")
	log, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to close ledger", zap.Error(err))
		}
	}()
	return fn(ctx, app)
}

func projectFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("project")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--project must be a UUID: %w", err)
	}
	return id, nil
}
