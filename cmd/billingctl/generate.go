package main

import (
	"context"
	"encoding/json"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/bootstrap"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate missing recurring invoices",
		Long: `Generate the recurring invoices missing up to a month, for one project or
for every project with an active deal. Months that already have a recurring
invoice are skipped, so the command can be re-run safely.`,
		Example: `  # Every active deal, up to the scheduler horizon
  billingctl generate

  # One project up to March 2024
  billingctl generate --project 3f0c... --up-to 2024-03`,
		RunE: runGenerate,
	}
	cmd.Flags().String("project", "", "Project ID; all active deals when empty")
	cmd.Flags().String("up-to", "", "Last month to generate (YYYY-MM); defaults to the scheduler lookahead")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	upTo, err := upToFlag(cmd)
	if err != nil {
		return err
	}
	single := cmd.Flags().Changed("project")
	projectID, err := projectFlag(cmd)
	if single && err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		if upTo.IsZero() {
			upTo = billing.AddMonths(billing.FirstOfMonth(time.Now()), app.Config.Scheduler.LookaheadMonths)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if !single {
			result, err := app.Batch.Run(ctx, upTo)
			if err != nil {
				return err
			}
			return enc.Encode(result)
		}

		deal, err := app.Deals.FindDeal(ctx, projectID)
		if err != nil {
			return err
		}
		created, err := app.Ledger.GenerateRecurringInvoices(ctx, projectID, deal, upTo)
		if err != nil {
			return err
		}
		return enc.Encode(billingapp.GenerateResult{
			ProjectID: projectID,
			UpToMonth: billing.MonthKey(upTo),
			Created:   created,
		})
	})
}

// upToFlag returns the zero time when --up-to is not set
func upToFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("up-to")
	if raw == "" {
		return time.Time{}, nil
	}
	return billing.ParseMonth(raw)
}
