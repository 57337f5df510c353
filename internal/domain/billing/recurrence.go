package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RecurringPlanner decides which recurring invoices a project is missing
type RecurringPlanner struct {
	calc    Calculator
	concept ConceptFormatter
}

// NewRecurringPlanner creates a planner
func NewRecurringPlanner(calc Calculator, concept ConceptFormatter) RecurringPlanner {
	return RecurringPlanner{calc: calc, concept: concept}
}

// MissingPeriods returns, in ascending order, the months from the deal's
// recurrence anchor through upToMonth that are not in existing.
func MissingPeriods(deal DealTerms, existing PeriodSet, upToMonth time.Time) []time.Time {
	return lo.Filter(MonthRange(deal.RecurrenceAnchor(), upToMonth), func(month time.Time, _ int) bool {
		return !existing.Has(month)
	})
}

// Plan builds one PENDING recurring invoice per missing period. Recurring
// fees are always taxable.
func (p RecurringPlanner) Plan(projectID uuid.UUID, deal DealTerms, existing PeriodSet, upToMonth, now time.Time) ([]*Invoice, error) {
	if err := deal.Validate(p.calc.Converter()); err != nil {
		return nil, err
	}

	periods := MissingPeriods(deal, existing, upToMonth)
	invoices := make([]*Invoice, 0, len(periods))
	for _, month := range periods {
		period := month
		inv, err := NewInvoice(p.calc, NewInvoiceParams{
			ProjectID:    projectID,
			InvoiceType:  InvoiceTypeRecurring,
			Concept:      p.concept.Format(period),
			Subtotal:     deal.RecurringAmount,
			HasTax:       true,
			Currency:     deal.Currency,
			ExchangeRate: deal.ExchangeRate,
			PeriodMonth:  &period,
		}, now)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
