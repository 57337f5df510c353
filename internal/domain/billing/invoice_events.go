package billing

import (
	"time"

	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types raised by the ledger
const (
	EventTypeInvoiceCreated             = "InvoiceCreated"
	EventTypeInvoiceUpdated             = "InvoiceUpdated"
	EventTypeInvoiceInvoiced            = "InvoiceInvoiced"
	EventTypeInvoicePaid                = "InvoicePaid"
	EventTypeInvoiceDeleted             = "InvoiceDeleted"
	EventTypeRecurringInvoicesGenerated = "RecurringInvoicesGenerated"

	aggregateTypeInvoice = "Invoice"
)

// InvoiceCreatedEvent is raised when an invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	ProjectID           uuid.UUID            `json:"project_id"`
	InvoiceType         InvoiceType          `json:"invoice_type"`
	PeriodMonth         *time.Time           `json:"period_month,omitempty"`
	Total               decimal.Decimal      `json:"total"`
	Currency            valueobject.Currency `json:"currency"`
	TotalInBaseCurrency decimal.Decimal      `json:"total_in_base_currency"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeInvoiceCreated, aggregateTypeInvoice, inv.ID),
		ProjectID:           inv.ProjectID,
		InvoiceType:         inv.InvoiceType,
		PeriodMonth:         inv.PeriodMonth,
		Total:               inv.Total,
		Currency:            inv.Currency,
		TotalInBaseCurrency: inv.TotalInBaseCurrency,
	}
}

// InvoiceUpdatedEvent is raised when invoice fields are edited
type InvoiceUpdatedEvent struct {
	shared.BaseDomainEvent
	ProjectID uuid.UUID `json:"project_id"`
	Fields    []Field   `json:"fields"`
}

// NewInvoiceUpdatedEvent creates a new InvoiceUpdatedEvent
func NewInvoiceUpdatedEvent(inv *Invoice, fields []Field) *InvoiceUpdatedEvent {
	return &InvoiceUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceUpdated, aggregateTypeInvoice, inv.ID),
		ProjectID:       inv.ProjectID,
		Fields:          fields,
	}
}

// InvoiceInvoicedEvent is raised when a document is attached to an invoice
type InvoiceInvoicedEvent struct {
	shared.BaseDomainEvent
	ProjectID     uuid.UUID `json:"project_id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	DocumentRef   string    `json:"document_ref,omitempty"`
}

// NewInvoiceInvoicedEvent creates a new InvoiceInvoicedEvent
func NewInvoiceInvoicedEvent(inv *Invoice) *InvoiceInvoicedEvent {
	return &InvoiceInvoicedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceInvoiced, aggregateTypeInvoice, inv.ID),
		ProjectID:       inv.ProjectID,
		InvoiceNumber:   inv.InvoiceNumber,
		DocumentRef:     inv.DocumentRef,
	}
}

// InvoicePaidEvent is raised when payment is recorded
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	ProjectID       uuid.UUID            `json:"project_id"`
	InvoiceNumber   string               `json:"invoice_number,omitempty"`
	Concept         string               `json:"concept"`
	Currency        valueobject.Currency `json:"currency"`
	AmountReceived  decimal.Decimal      `json:"amount_received"`
	RetentionAmount *decimal.Decimal     `json:"retention_amount,omitempty"`
	PaidAt          time.Time            `json:"paid_at"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	e := &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, aggregateTypeInvoice, inv.ID),
		ProjectID:       inv.ProjectID,
		InvoiceNumber:   inv.InvoiceNumber,
		Concept:         inv.Concept,
		Currency:        inv.Currency,
		RetentionAmount: inv.RetentionAmount,
	}
	if inv.AmountReceived != nil {
		e.AmountReceived = *inv.AmountReceived
	}
	if inv.PaidAt != nil {
		e.PaidAt = *inv.PaidAt
	}
	return e
}

// InvoiceDeletedEvent is raised when an unpaid invoice is deleted
type InvoiceDeletedEvent struct {
	shared.BaseDomainEvent
	ProjectID   uuid.UUID     `json:"project_id"`
	InvoiceType InvoiceType   `json:"invoice_type"`
	Status      InvoiceStatus `json:"status"`
	PeriodMonth *time.Time    `json:"period_month,omitempty"`
}

// NewInvoiceDeletedEvent creates a new InvoiceDeletedEvent
func NewInvoiceDeletedEvent(inv *Invoice) *InvoiceDeletedEvent {
	return &InvoiceDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceDeleted, aggregateTypeInvoice, inv.ID),
		ProjectID:       inv.ProjectID,
		InvoiceType:     inv.InvoiceType,
		Status:          inv.Status,
		PeriodMonth:     inv.PeriodMonth,
	}
}

// RecurringInvoicesGeneratedEvent summarizes one generation run for a project
type RecurringInvoicesGeneratedEvent struct {
	shared.BaseDomainEvent
	ProjectID uuid.UUID   `json:"project_id"`
	Periods   []time.Time `json:"periods"`
	UpToMonth time.Time   `json:"up_to_month"`
}

// NewRecurringInvoicesGeneratedEvent creates a new RecurringInvoicesGeneratedEvent.
// The project is the aggregate the event is keyed on.
func NewRecurringInvoicesGeneratedEvent(projectID uuid.UUID, periods []time.Time, upTo time.Time) *RecurringInvoicesGeneratedEvent {
	return &RecurringInvoicesGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecurringInvoicesGenerated, "Project", projectID),
		ProjectID:       projectID,
		Periods:         periods,
		UpToMonth:       upTo,
	}
}
