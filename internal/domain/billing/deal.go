package billing

import (
	"time"

	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DealTerms are the contract terms of a project's deal that seed recurring
// generation. The ledger reads them and never mutates them.
type DealTerms struct {
	Currency           valueobject.Currency
	RecurringAmount    decimal.Decimal
	ExchangeRate       *decimal.Decimal
	StartDate          time.Time
	BillingStartDate   *time.Time // overrides StartDate for recurrence when set
	FirstPeriodCovered bool       // first month already paid through the implementation fee
}

// Validate checks the terms against conv's base currency
func (d DealTerms) Validate(conv valueobject.Converter) error {
	if !d.Currency.IsValid() {
		return invalidInput("deal currency %q is not valid", d.Currency)
	}
	if d.RecurringAmount.IsNegative() {
		return invalidInput("deal recurring amount must not be negative")
	}
	if d.StartDate.IsZero() && d.BillingStartDate == nil {
		return invalidInput("deal start date is required")
	}
	return conv.ValidateRate(d.Currency, d.ExchangeRate)
}

// RecurrenceAnchor is the first month that should carry a recurring invoice
func (d DealTerms) RecurrenceAnchor() time.Time {
	start := d.StartDate
	if d.BillingStartDate != nil {
		start = *d.BillingStartDate
	}
	anchor := FirstOfMonth(start)
	if d.FirstPeriodCovered {
		anchor = AddMonths(anchor, 1)
	}
	return anchor
}
