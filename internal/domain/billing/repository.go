package billing

import (
	"context"

	"github.com/google/uuid"
)

// InvoiceFilter narrows ListInvoices results; zero values mean no filter
type InvoiceFilter struct {
	ProjectID   uuid.UUID
	Status      InvoiceStatus
	InvoiceType InvoiceType
}

// InvoiceRepository is the persistence port of the ledger
type InvoiceRepository interface {
	// FindInvoices returns every invoice of a project ordered by period month then creation time
	FindInvoices(ctx context.Context, projectID uuid.UUID) ([]Invoice, error)

	// FindByID returns ErrNotFound when no invoice has the id
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByFilter returns the invoices matching filter
	FindByFilter(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// RecurringPeriods returns the period months already billed as RECURRING for a project
	RecurringPeriods(ctx context.Context, projectID uuid.UUID) (PeriodSet, error)

	// InsertInvoice stores a new invoice. A second RECURRING invoice for the
	// same (project, period) fails with ErrDuplicatePeriod.
	InsertInvoice(ctx context.Context, inv *Invoice) error

	// UpdateInvoiceRow writes the invoice's dirty fields only if the stored
	// status still equals expected. Otherwise it returns ErrNotFound or a
	// TransitionError naming the stored status.
	UpdateInvoiceRow(ctx context.Context, inv *Invoice, expected InvoiceStatus) error

	// DeleteInvoiceRow removes an invoice only if its stored status equals
	// expected and is not PAID.
	DeleteInvoiceRow(ctx context.Context, id uuid.UUID, expected InvoiceStatus) error

	// WithinProjectLock runs fn in a single transaction that holds an
	// exclusive per-project lock. The repository passed to fn is bound to it.
	WithinProjectLock(ctx context.Context, projectID uuid.UUID, fn func(repo InvoiceRepository) error) error
}
