package models

import (
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// The partial unique index on (project_id, period_month) for RECURRING rows
// lives in the SQL migration since GORM tags cannot express the predicate.
type InvoiceModel struct {
	AggregateModel
	ProjectID           uuid.UUID              `gorm:"type:uuid;not null;index"`
	InvoiceType         billing.InvoiceType    `gorm:"type:varchar(20);not null"`
	PeriodMonth         *time.Time             `gorm:"type:date"`
	Concept             string                 `gorm:"type:varchar(255);not null"`
	Subtotal            decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	HasTax              bool                   `gorm:"not null;default:false"`
	TaxAmount           decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Total               decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Currency            string                 `gorm:"type:char(3);not null"`
	ExchangeRate        *decimal.Decimal       `gorm:"type:decimal(18,6)"`
	TotalInBaseCurrency decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Status              billing.InvoiceStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	InvoiceNumber       string                 `gorm:"type:varchar(100)"`
	DocumentRef         string                 `gorm:"type:varchar(500)"`
	DueDate             *time.Time             `gorm:"type:date"`
	PaidAt              *time.Time
	AmountReceived      *decimal.Decimal       `gorm:"type:decimal(18,2)"`
	RetentionAmount     *decimal.Decimal       `gorm:"type:decimal(18,2)"`
	ProofRef            string                 `gorm:"type:varchar(500)"`
	Notes               string                 `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot:   m.AggregateModel.ToDomain(),
		ProjectID:           m.ProjectID,
		InvoiceType:         m.InvoiceType,
		PeriodMonth:         utcDate(m.PeriodMonth),
		Concept:             m.Concept,
		Subtotal:            m.Subtotal,
		HasTax:              m.HasTax,
		TaxAmount:           m.TaxAmount,
		Total:               m.Total,
		Currency:            valueobject.Currency(m.Currency),
		ExchangeRate:        m.ExchangeRate,
		TotalInBaseCurrency: m.TotalInBaseCurrency,
		Status:              m.Status,
		InvoiceNumber:       m.InvoiceNumber,
		DocumentRef:         m.DocumentRef,
		DueDate:             utcDate(m.DueDate),
		PaidAt:              utcTime(m.PaidAt),
		AmountReceived:      m.AmountReceived,
		RetentionAmount:     m.RetentionAmount,
		ProofRef:            m.ProofRef,
		Notes:               m.Notes,
	}
}

// InvoiceModelFromDomain converts a domain Invoice to a persistence model.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		ProjectID:           inv.ProjectID,
		InvoiceType:         inv.InvoiceType,
		PeriodMonth:         inv.PeriodMonth,
		Concept:             inv.Concept,
		Subtotal:            inv.Subtotal,
		HasTax:              inv.HasTax,
		TaxAmount:           inv.TaxAmount,
		Total:               inv.Total,
		Currency:            inv.Currency.String(),
		ExchangeRate:        inv.ExchangeRate,
		TotalInBaseCurrency: inv.TotalInBaseCurrency,
		Status:              inv.Status,
		InvoiceNumber:       inv.InvoiceNumber,
		DocumentRef:         inv.DocumentRef,
		DueDate:             inv.DueDate,
		PaidAt:              inv.PaidAt,
		AmountReceived:      inv.AmountReceived,
		RetentionAmount:     inv.RetentionAmount,
		ProofRef:            inv.ProofRef,
		Notes:               inv.Notes,
	}
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	return m
}

// InvoiceColumns returns the column values of the given fields, keyed by
// column name, for a column-scoped UPDATE.
func InvoiceColumns(inv *billing.Invoice, fields []billing.Field) map[string]any {
	cols := make(map[string]any, len(fields))
	for _, f := range fields {
		cols[string(f)] = invoiceColumn(inv, f)
	}
	return cols
}

func invoiceColumn(inv *billing.Invoice, f billing.Field) any {
	switch f {
	case billing.FieldConcept:
		return inv.Concept
	case billing.FieldSubtotal:
		return inv.Subtotal
	case billing.FieldHasTax:
		return inv.HasTax
	case billing.FieldTaxAmount:
		return inv.TaxAmount
	case billing.FieldTotal:
		return inv.Total
	case billing.FieldCurrency:
		return inv.Currency.String()
	case billing.FieldExchangeRate:
		return inv.ExchangeRate
	case billing.FieldTotalInBaseCurrency:
		return inv.TotalInBaseCurrency
	case billing.FieldStatus:
		return inv.Status
	case billing.FieldInvoiceNumber:
		return inv.InvoiceNumber
	case billing.FieldDocumentRef:
		return inv.DocumentRef
	case billing.FieldDueDate:
		return inv.DueDate
	case billing.FieldPaidAt:
		return inv.PaidAt
	case billing.FieldAmountReceived:
		return inv.AmountReceived
	case billing.FieldRetentionAmount:
		return inv.RetentionAmount
	case billing.FieldProofRef:
		return inv.ProofRef
	case billing.FieldNotes:
		return inv.Notes
	}
	return nil
}

// utcDate normalizes a DATE column read back by the driver.
func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// utcTime reads a timestamp column back in UTC
func utcTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
