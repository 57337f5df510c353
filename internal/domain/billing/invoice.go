package billing

import (
	"strings"
	"time"

	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxConceptLength = 255

// Field names a persisted invoice attribute; mutators record which fields
// they touched so the store can write only those columns.
type Field string

const (
	FieldConcept             Field = "concept"
	FieldSubtotal            Field = "subtotal"
	FieldHasTax              Field = "has_tax"
	FieldTaxAmount           Field = "tax_amount"
	FieldTotal               Field = "total"
	FieldCurrency            Field = "currency"
	FieldExchangeRate        Field = "exchange_rate"
	FieldTotalInBaseCurrency Field = "total_in_base_currency"
	FieldStatus              Field = "status"
	FieldInvoiceNumber       Field = "invoice_number"
	FieldDocumentRef         Field = "document_ref"
	FieldDueDate             Field = "due_date"
	FieldPaidAt              Field = "paid_at"
	FieldAmountReceived      Field = "amount_received"
	FieldRetentionAmount     Field = "retention_amount"
	FieldProofRef            Field = "proof_ref"
	FieldNotes               Field = "notes"
)

var amountFields = []Field{
	FieldSubtotal, FieldHasTax, FieldTaxAmount, FieldTotal,
	FieldCurrency, FieldExchangeRate, FieldTotalInBaseCurrency,
}

// Invoice is the aggregate root of the ledger
type Invoice struct {
	shared.BaseAggregateRoot
	ProjectID           uuid.UUID
	InvoiceType         InvoiceType
	PeriodMonth         *time.Time // first of month; required for RECURRING
	Concept             string
	Subtotal            decimal.Decimal
	HasTax              bool
	TaxAmount           decimal.Decimal
	Total               decimal.Decimal
	Currency            valueobject.Currency
	ExchangeRate        *decimal.Decimal
	TotalInBaseCurrency decimal.Decimal
	Status              InvoiceStatus
	InvoiceNumber       string
	DocumentRef         string
	DueDate             *time.Time
	PaidAt              *time.Time
	AmountReceived      *decimal.Decimal // in invoice currency
	RetentionAmount     *decimal.Decimal // withheld at source by the payer
	ProofRef            string
	Notes               string

	dirty []Field
}

// NewInvoiceParams holds the inputs of NewInvoice
type NewInvoiceParams struct {
	ProjectID    uuid.UUID
	InvoiceType  InvoiceType
	Concept      string
	Subtotal     decimal.Decimal
	HasTax       bool
	Currency     valueobject.Currency
	ExchangeRate *decimal.Decimal
	PeriodMonth  *time.Time
	DueDate      *time.Time
	Notes        string
}

// NewInvoice creates a PENDING invoice with its derived amounts computed by calc
func NewInvoice(calc Calculator, p NewInvoiceParams, now time.Time) (*Invoice, error) {
	if p.ProjectID == uuid.Nil {
		return nil, invalidInput("project ID cannot be empty")
	}
	if !p.InvoiceType.IsValid() {
		return nil, invalidInput("invoice type %q is not valid", p.InvoiceType)
	}
	concept := strings.TrimSpace(p.Concept)
	if concept == "" {
		return nil, invalidInput("concept cannot be empty")
	}
	if len(concept) > maxConceptLength {
		return nil, invalidInput("concept cannot exceed %d characters", maxConceptLength)
	}
	if p.InvoiceType.RequiresPeriod() && p.PeriodMonth == nil {
		return nil, invalidInput("period month is required for %s invoices", p.InvoiceType)
	}

	amounts, err := calc.Compute(p.Subtotal, p.HasTax, p.Currency, p.ExchangeRate)
	if err != nil {
		return nil, err
	}

	var period *time.Time
	if p.PeriodMonth != nil {
		m := FirstOfMonth(*p.PeriodMonth)
		period = &m
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		ProjectID:         p.ProjectID,
		InvoiceType:       p.InvoiceType,
		PeriodMonth:       period,
		Concept:           concept,
		Status:            InvoiceStatusPending,
		DueDate:           p.DueDate,
		Notes:             p.Notes,
	}
	inv.setAmounts(amounts)
	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

func (inv *Invoice) setAmounts(a Amounts) {
	inv.Subtotal = a.Subtotal
	inv.HasTax = a.HasTax
	inv.TaxAmount = a.TaxAmount
	inv.Total = a.Total
	inv.Currency = a.Currency
	inv.ExchangeRate = a.ExchangeRate
	inv.TotalInBaseCurrency = a.TotalInBaseCurrency
}

// Amounts returns the invoice's monetary fields
func (inv *Invoice) Amounts() Amounts {
	return Amounts{
		Subtotal:            inv.Subtotal,
		HasTax:              inv.HasTax,
		TaxAmount:           inv.TaxAmount,
		Total:               inv.Total,
		Currency:            inv.Currency,
		ExchangeRate:        copyDecimal(inv.ExchangeRate),
		TotalInBaseCurrency: inv.TotalInBaseCurrency,
	}
}

// TotalMoney returns the total in the invoice currency
func (inv *Invoice) TotalMoney() valueobject.Money {
	return valueobject.MustMoney(inv.Total, inv.Currency)
}

// IsRecurring returns true for RECURRING invoices
func (inv *Invoice) IsRecurring() bool {
	return inv.InvoiceType == InvoiceTypeRecurring
}

// InvoiceEdit lists the fields an UpdateInvoice call may change; nil means unchanged.
type InvoiceEdit struct {
	Concept      *string
	Subtotal     *decimal.Decimal
	HasTax       *bool
	Currency     *valueobject.Currency
	ExchangeRate *decimal.Decimal
	DueDate      *time.Time
	Notes        *string
}

// TouchesAmounts reports whether the edit changes any monetary input
func (e InvoiceEdit) TouchesAmounts() bool {
	return e.Subtotal != nil || e.HasTax != nil || e.Currency != nil || e.ExchangeRate != nil
}

// IsEmpty reports whether the edit changes nothing
func (e InvoiceEdit) IsEmpty() bool {
	return !e.TouchesAmounts() && e.Concept == nil && e.DueDate == nil && e.Notes == nil
}

// ApplyEdit applies e. Monetary inputs that are not supplied keep their
// current values, and derived amounts are recomputed whenever any of them is.
// Paid invoices are financially frozen: only non-monetary fields may change.
func (inv *Invoice) ApplyEdit(calc Calculator, e InvoiceEdit, now time.Time) error {
	if e.TouchesAmounts() && inv.Status == InvoiceStatusPaid {
		return NewTransitionError(inv.Status, "edit amounts")
	}

	var concept string
	if e.Concept != nil {
		concept = strings.TrimSpace(*e.Concept)
		if concept == "" {
			return invalidInput("concept cannot be empty")
		}
		if len(concept) > maxConceptLength {
			return invalidInput("concept cannot exceed %d characters", maxConceptLength)
		}
	}

	if e.TouchesAmounts() {
		subtotal, hasTax := inv.Subtotal, inv.HasTax
		currency, rate := inv.Currency, inv.ExchangeRate
		if e.Subtotal != nil {
			subtotal = *e.Subtotal
		}
		if e.HasTax != nil {
			hasTax = *e.HasTax
		}
		if e.Currency != nil {
			currency = *e.Currency
		}
		if e.ExchangeRate != nil {
			rate = e.ExchangeRate
		}
		amounts, err := calc.Compute(subtotal, hasTax, currency, rate)
		if err != nil {
			return err
		}
		inv.setAmounts(amounts)
		inv.markDirty(amountFields...)
	}

	if concept != "" {
		inv.Concept = concept
		inv.markDirty(FieldConcept)
	}
	if e.DueDate != nil {
		d := *e.DueDate
		inv.DueDate = &d
		inv.markDirty(FieldDueDate)
	}
	if e.Notes != nil {
		inv.Notes = *e.Notes
		inv.markDirty(FieldNotes)
	}

	if len(inv.dirty) == 0 {
		return nil
	}
	inv.Touch(now)
	inv.AddDomainEvent(NewInvoiceUpdatedEvent(inv, inv.DirtyFields()))
	return nil
}

// MarkInvoiced attaches the invoice document. Only PENDING invoices qualify.
func (inv *Invoice) MarkInvoiced(invoiceNumber, documentRef string, now time.Time) error {
	if !inv.Status.CanMarkInvoiced() {
		return NewTransitionError(inv.Status, "mark invoiced")
	}

	inv.Status = InvoiceStatusInvoiced
	inv.markDirty(FieldStatus)
	if n := strings.TrimSpace(invoiceNumber); n != "" {
		inv.InvoiceNumber = n
		inv.markDirty(FieldInvoiceNumber)
	}
	if documentRef != "" {
		inv.DocumentRef = documentRef
		inv.markDirty(FieldDocumentRef)
	}

	inv.Touch(now)
	inv.AddDomainEvent(NewInvoiceInvoicedEvent(inv))
	return nil
}

// Payment describes a payment being recorded against an invoice
type Payment struct {
	PaidAt          time.Time
	AmountReceived  decimal.Decimal
	RetentionAmount *decimal.Decimal
	ProofRef        string
}

// MarkPaid records payment. PENDING and INVOICED invoices qualify; payment
// without a formal document is allowed.
func (inv *Invoice) MarkPaid(p Payment, now time.Time) error {
	if !inv.Status.CanMarkPaid() {
		return NewTransitionError(inv.Status, "mark paid")
	}
	if p.PaidAt.IsZero() {
		return invalidInput("paid at is required")
	}
	if p.AmountReceived.IsNegative() {
		return invalidInput("amount received must not be negative")
	}
	if !valueobject.HasMoneyPrecision(p.AmountReceived) {
		return invalidInput("amount received %s has more than %d decimal places", p.AmountReceived, valueobject.MoneyPlaces)
	}
	if p.RetentionAmount != nil {
		if p.RetentionAmount.IsNegative() {
			return invalidInput("retention amount must not be negative")
		}
		if !valueobject.HasMoneyPrecision(*p.RetentionAmount) {
			return invalidInput("retention amount %s has more than %d decimal places", *p.RetentionAmount, valueobject.MoneyPlaces)
		}
	}

	paidAt := p.PaidAt
	received := p.AmountReceived
	inv.Status = InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.AmountReceived = &received
	inv.RetentionAmount = copyDecimal(p.RetentionAmount)
	inv.markDirty(FieldStatus, FieldPaidAt, FieldAmountReceived, FieldRetentionAmount)
	if p.ProofRef != "" {
		inv.ProofRef = p.ProofRef
		inv.markDirty(FieldProofRef)
	}

	inv.Touch(now)
	inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	return nil
}

// EnsureDeletable returns ErrCannotDeletePaid for paid invoices
func (inv *Invoice) EnsureDeletable() error {
	if inv.Status == InvoiceStatusPaid {
		return ErrCannotDeletePaid
	}
	return nil
}

// MarkDeleted records the deletion event; the row itself is removed by the store
func (inv *Invoice) MarkDeleted() error {
	if err := inv.EnsureDeletable(); err != nil {
		return err
	}
	inv.AddDomainEvent(NewInvoiceDeletedEvent(inv))
	return nil
}

func (inv *Invoice) markDirty(fields ...Field) {
	for _, f := range fields {
		if !inv.isDirty(f) {
			inv.dirty = append(inv.dirty, f)
		}
	}
}

func (inv *Invoice) isDirty(f Field) bool {
	for _, d := range inv.dirty {
		if d == f {
			return true
		}
	}
	return false
}

// DirtyFields returns the fields changed since the invoice was loaded or created
func (inv *Invoice) DirtyFields() []Field {
	out := make([]Field, len(inv.dirty))
	copy(out, inv.dirty)
	return out
}

// ClearDirty forgets tracked changes, typically after they were persisted
func (inv *Invoice) ClearDirty() {
	inv.dirty = nil
}

// PendingAction names the unsaved change for error messages: the lifecycle
// transition when the status is dirty, otherwise an edit.
func (inv *Invoice) PendingAction() string {
	if !inv.isDirty(FieldStatus) {
		return "update"
	}
	switch inv.Status {
	case InvoiceStatusInvoiced:
		return "mark invoiced"
	case InvoiceStatusPaid:
		return "mark paid"
	}
	return "update"
}
