package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// LedgerMetrics holds the invoice ledger instruments.
type LedgerMetrics struct {
	invoicesCreated    *Counter
	invoicesPaid       *Counter
	recurringGenerated *Counter
	transitionRejected *Counter
	generationDuration *Histogram
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error

	if m.invoicesCreated, err = NewCounter(meter,
		"billing_invoices_created_total",
		"Invoices created, by invoice type",
		"{invoices}",
	); err != nil {
		return nil, err
	}
	if m.invoicesPaid, err = NewCounter(meter,
		"billing_invoices_paid_total",
		"Invoices marked paid",
		"{invoices}",
	); err != nil {
		return nil, err
	}
	if m.recurringGenerated, err = NewCounter(meter,
		"billing_recurring_generated_total",
		"Recurring invoices created by catch-up generation",
		"{invoices}",
	); err != nil {
		return nil, err
	}
	if m.transitionRejected, err = NewCounter(meter,
		"billing_transition_rejected_total",
		"Status transitions rejected, by attempted action",
		"{rejections}",
	); err != nil {
		return nil, err
	}
	if m.generationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "billing_generation_duration_seconds",
		Description: "Duration of one project's recurring generation",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// InvoiceCreated counts one created invoice. A nil receiver is a no-op.
func (m *LedgerMetrics) InvoiceCreated(ctx context.Context, invoiceType string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc(ctx, attribute.String("invoice_type", invoiceType))
}

// InvoicePaid counts one payment.
func (m *LedgerMetrics) InvoicePaid(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesPaid.Inc(ctx)
}

// RecurringGenerated records one generation run that created n invoices.
func (m *LedgerMetrics) RecurringGenerated(ctx context.Context, n int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if n > 0 {
		m.recurringGenerated.Add(ctx, int64(n))
	}
	m.generationDuration.RecordDuration(ctx, elapsed)
}

// TransitionRejected counts a refused status change.
func (m *LedgerMetrics) TransitionRejected(ctx context.Context, attempted string) {
	if m == nil {
		return
	}
	m.transitionRejected.Inc(ctx, attribute.String("attempted", attempted))
}
