package main

import (
	"context"
	"encoding/json"

	"github.com/erp/billing/internal/bootstrap"
	"github.com/spf13/cobra"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a project's billing summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := projectFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				summary, err := app.Ledger.GetSummary(ctx, projectID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			})
		},
	}
	cmd.Flags().String("project", "", "Project ID")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
