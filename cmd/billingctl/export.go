package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/bootstrap"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const csvContentType = "text/csv; charset=utf-8"

// reporter is the part of the ledger an export reads
type reporter interface {
	Report(ctx context.Context, projectID uuid.UUID) ([]billing.ReportRow, error)
}

// uploader stores an exported file in the document bucket
type uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's invoices as CSV",
		Example: `  billingctl export --project 3f0c... > billing.csv
  billingctl export --project 3f0c... --out billing.csv --upload`,
		RunE: runExport,
	}
	cmd.Flags().String("project", "", "Project ID")
	cmd.Flags().String("out", "", "Write to this file instead of stdout")
	cmd.Flags().Bool("upload", false, "Also store the file in the document bucket")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	projectID, err := projectFlag(cmd)
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("out")
	upload, _ := cmd.Flags().GetBool("upload")

	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		var store uploader
		if upload {
			if app.Documents == nil {
				return errors.New("--upload needs storage.bucket to be configured")
			}
			store = app.Documents
		}

		w := cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		key, err := exportReport(ctx, app.Ledger, projectID, w, store, time.Now())
		if err != nil {
			return err
		}
		if key != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s\n", key)
		}
		return nil
	})
}

// exportReport writes the project's report CSV to w and, when store is not
// nil, uploads the same bytes. It returns the uploaded object key.
func exportReport(ctx context.Context, ledger reporter, projectID uuid.UUID, w io.Writer, store uploader, now time.Time) (string, error) {
	rows, err := ledger.Report(ctx, projectID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := billingapp.WriteReportCSV(&buf, rows); err != nil {
		return "", err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return "", err
	}
	if store == nil {
		return "", nil
	}

	key := fmt.Sprintf("reports/%s/billing-%s.csv", projectID, now.UTC().Format("20060102T150405"))
	if err := store.Upload(ctx, key, buf.Bytes(), csvContentType); err != nil {
		return "", err
	}
	return key, nil
}
