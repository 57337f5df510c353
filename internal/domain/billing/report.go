package billing

import (
	"sort"
	"time"

	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Summary row categories
const (
	CategoryTotalBilled    = "SUMMARY:TOTAL_BILLED"
	CategoryTotalPaid      = "SUMMARY:TOTAL_PAID"
	CategoryTotalPending   = "SUMMARY:TOTAL_PENDING"
	CategoryTotalRetention = "SUMMARY:TOTAL_RETENTION"
	CategoryTotalTaxOwed   = "SUMMARY:TOTAL_TAX_OWED"

	// MixedCurrency marks a summary row adding amounts of more than one currency
	MixedCurrency = "MIXED"
)

// ReportRow is one line of the flat billing report
type ReportRow struct {
	Date       time.Time       `json:"date"`
	Category   string          `json:"category"`
	Concept    string          `json:"concept,omitempty"`
	Status     string          `json:"status,omitempty"`
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	AmountBase decimal.Decimal `json:"amount_base"`
}

// ReportHeader is the column order used when rows are rendered as a table
var ReportHeader = []string{"date", "category", "concept", "status", "currency", "amount", "amount_base"}

// Record renders the row as strings in ReportHeader order
func (r ReportRow) Record() []string {
	return []string{
		r.Date.Format(time.DateOnly),
		r.Category,
		r.Concept,
		r.Status,
		r.Currency,
		r.Amount.StringFixed(valueobject.MoneyPlaces),
		r.AmountBase.StringFixed(valueobject.MoneyPlaces),
	}
}

// ReportRows flattens invoices (dated by period, else creation) followed by
// the summary totals dated asOf.
func ReportRows(invoices []Invoice, summary BillingSummary, base valueobject.Currency, asOf time.Time) []ReportRow {
	rows := lo.Map(invoices, func(inv Invoice, _ int) ReportRow {
		date := inv.CreatedAt
		if inv.PeriodMonth != nil {
			date = *inv.PeriodMonth
		}
		total := inv.TotalMoney()
		return ReportRow{
			Date:       date,
			Category:   inv.InvoiceType.String(),
			Concept:    inv.Concept,
			Status:     inv.Status.String(),
			Currency:   total.Currency().String(),
			Amount:     total.Amount(),
			AmountBase: inv.TotalInBaseCurrency,
		}
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	paid := lo.Filter(invoices, func(inv Invoice, _ int) bool { return inv.Status == InvoiceStatusPaid })
	paidCurrency := commonCurrency(paid)

	rows = append(rows,
		ReportRow{Date: asOf, Category: CategoryTotalBilled, Currency: base.String(), Amount: summary.TotalBilled, AmountBase: summary.TotalBilled},
		ReportRow{Date: asOf, Category: CategoryTotalPending, Currency: base.String(), Amount: summary.TotalPending, AmountBase: summary.TotalPending},
		ReportRow{Date: asOf, Category: CategoryTotalPaid, Currency: paidCurrency, Amount: summary.TotalPaid},
		ReportRow{Date: asOf, Category: CategoryTotalRetention, Currency: paidCurrency, Amount: summary.TotalRetention},
		ReportRow{Date: asOf, Category: CategoryTotalTaxOwed, Currency: paidCurrency, Amount: summary.TotalTaxOwed},
	)
	return rows
}

func commonCurrency(invoices []Invoice) string {
	currencies := lo.Uniq(lo.Map(invoices, func(inv Invoice, _ int) valueobject.Currency { return inv.Currency }))
	switch len(currencies) {
	case 0:
		return ""
	case 1:
		return currencies[0].String()
	default:
		return MixedCurrency
	}
}
