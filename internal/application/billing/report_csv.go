package billing

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/erp/billing/internal/domain/billing"
)

// WriteReportCSV renders report rows as CSV with a header line
func WriteReportCSV(w io.Writer, rows []billing.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(billing.ReportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
