package billing

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// TypeGroup is the slice of a project's invoices sharing one type
type TypeGroup struct {
	InvoiceType         InvoiceType     `json:"invoice_type"`
	Count               int             `json:"count"`
	TotalInBaseCurrency decimal.Decimal `json:"total_in_base_currency"`
	Invoices            []Invoice       `json:"-"`
}

// BillingSummary is the read-side roll-up of a project's invoices.
//
// TotalBilled and TotalPending are in the base currency. TotalPaid,
// TotalRetention and TotalTaxOwed add up the invoice-currency amounts as
// recorded, so they are only meaningful per currency when a project mixes them.
type BillingSummary struct {
	ProjectID      uuid.UUID             `json:"project_id"`
	TotalBilled    decimal.Decimal       `json:"total_billed"`
	TotalPaid      decimal.Decimal       `json:"total_paid"`
	TotalPending   decimal.Decimal       `json:"total_pending"`
	TotalRetention decimal.Decimal       `json:"total_retention"`
	TotalTaxOwed   decimal.Decimal       `json:"total_tax_owed"`
	CountByStatus  map[InvoiceStatus]int `json:"count_by_status"`
	ByType         []TypeGroup           `json:"by_type"`
	InvoiceCount   int                   `json:"invoice_count"`
}

// Summarize computes the roll-up from scratch. Tax is owed on a cash basis:
// only invoices that are PAID and taxed contribute.
func Summarize(projectID uuid.UUID, invoices []Invoice) BillingSummary {
	paid := lo.Filter(invoices, func(inv Invoice, _ int) bool { return inv.Status == InvoiceStatusPaid })
	pending := lo.Filter(invoices, func(inv Invoice, _ int) bool { return inv.Status == InvoiceStatusPending })
	billed := lo.Filter(invoices, func(inv Invoice, _ int) bool { return inv.Status.IsBilled() })

	s := BillingSummary{
		ProjectID:    projectID,
		TotalBilled:  sumBy(billed, func(inv Invoice) decimal.Decimal { return inv.TotalInBaseCurrency }),
		TotalPending: sumBy(pending, func(inv Invoice) decimal.Decimal { return inv.TotalInBaseCurrency }),
		TotalPaid:    sumBy(paid, func(inv Invoice) decimal.Decimal { return deref(inv.AmountReceived) }),
		TotalRetention: sumBy(paid, func(inv Invoice) decimal.Decimal {
			return deref(inv.RetentionAmount)
		}),
		TotalTaxOwed: sumBy(paid, func(inv Invoice) decimal.Decimal {
			if !inv.HasTax {
				return decimal.Zero
			}
			return inv.TaxAmount
		}),
		CountByStatus: make(map[InvoiceStatus]int, len(AllInvoiceStatuses)),
		InvoiceCount:  len(invoices),
	}

	counts := lo.CountValuesBy(invoices, func(inv Invoice) InvoiceStatus { return inv.Status })
	for _, st := range AllInvoiceStatuses {
		s.CountByStatus[st] = counts[st]
	}

	groups := lo.GroupBy(invoices, func(inv Invoice) InvoiceType { return inv.InvoiceType })
	for _, t := range AllInvoiceTypes {
		members := groups[t]
		s.ByType = append(s.ByType, TypeGroup{
			InvoiceType:         t,
			Count:               len(members),
			TotalInBaseCurrency: sumBy(members, func(inv Invoice) decimal.Decimal { return inv.TotalInBaseCurrency }),
			Invoices:            members,
		})
	}

	return s
}

// Group returns the group for t
func (s BillingSummary) Group(t InvoiceType) TypeGroup {
	g, _ := lo.Find(s.ByType, func(g TypeGroup) bool { return g.InvoiceType == t })
	return g
}

func sumBy(invoices []Invoice, value func(Invoice) decimal.Decimal) decimal.Decimal {
	return lo.Reduce(invoices, func(acc decimal.Decimal, inv Invoice, _ int) decimal.Decimal {
		return acc.Add(value(inv))
	}, decimal.Zero)
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
