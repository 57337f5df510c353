package billing

import (
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest is the input of LedgerService.CreateInvoice
type CreateInvoiceRequest struct {
	ProjectID    uuid.UUID
	InvoiceType  billing.InvoiceType
	Concept      string
	Subtotal     decimal.Decimal
	HasTax       bool
	Currency     valueobject.Currency
	ExchangeRate *decimal.Decimal
	PeriodMonth  *time.Time
	DueDate      *time.Time
	Notes        string
}

// MarkInvoicedRequest is the input of LedgerService.MarkInvoiced
type MarkInvoicedRequest struct {
	InvoiceNumber string
	DocumentRef   string
}

// MarkPaidRequest is the input of LedgerService.MarkPaid
type MarkPaidRequest struct {
	PaidAt          time.Time
	AmountReceived  decimal.Decimal
	RetentionAmount *decimal.Decimal
	ProofRef        string
}

// ListInvoicesFilter narrows ListInvoices; empty strings mean any
type ListInvoicesFilter struct {
	Status      billing.InvoiceStatus
	InvoiceType billing.InvoiceType
}

// DocumentKind says what an uploaded object is attached as
type DocumentKind string

const (
	DocumentKindInvoice DocumentKind = "document"
	DocumentKindProof   DocumentKind = "proof"
)

// IsValid reports whether k is a known kind
func (k DocumentKind) IsValid() bool {
	return k == DocumentKindInvoice || k == DocumentKindProof
}

// DocumentUploadRequest asks for a presigned upload URL
type DocumentUploadRequest struct {
	Kind        DocumentKind
	FileName    string
	ContentType string
}

// DocumentUploadResponse carries the object key to pass back as documentRef/proofRef
type DocumentUploadResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvoiceResponse is the API view of an invoice
type InvoiceResponse struct {
	ID                  uuid.UUID        `json:"id"`
	ProjectID           uuid.UUID        `json:"project_id"`
	InvoiceType         string           `json:"invoice_type"`
	PeriodMonth         *string          `json:"period_month,omitempty"`
	Concept             string           `json:"concept"`
	Subtotal            decimal.Decimal  `json:"subtotal"`
	HasTax              bool             `json:"has_tax"`
	TaxAmount           decimal.Decimal  `json:"tax_amount"`
	Total               decimal.Decimal  `json:"total"`
	Currency            string           `json:"currency"`
	ExchangeRate        *decimal.Decimal `json:"exchange_rate,omitempty"`
	TotalInBaseCurrency decimal.Decimal  `json:"total_in_base_currency"`
	Status              string           `json:"status"`
	InvoiceNumber       string           `json:"invoice_number,omitempty"`
	DocumentRef         string           `json:"document_ref,omitempty"`
	DueDate             *time.Time       `json:"due_date,omitempty"`
	PaidAt              *time.Time       `json:"paid_at,omitempty"`
	AmountReceived      *decimal.Decimal `json:"amount_received,omitempty"`
	RetentionAmount     *decimal.Decimal `json:"retention_amount,omitempty"`
	ProofRef            string           `json:"proof_ref,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	Version             int              `json:"version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// ToInvoiceResponse converts a domain invoice
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                  inv.ID,
		ProjectID:           inv.ProjectID,
		InvoiceType:         inv.InvoiceType.String(),
		Concept:             inv.Concept,
		Subtotal:            inv.Subtotal,
		HasTax:              inv.HasTax,
		TaxAmount:           inv.TaxAmount,
		Total:               inv.Total,
		Currency:            inv.Currency.String(),
		ExchangeRate:        inv.ExchangeRate,
		TotalInBaseCurrency: inv.TotalInBaseCurrency,
		Status:              inv.Status.String(),
		InvoiceNumber:       inv.InvoiceNumber,
		DocumentRef:         inv.DocumentRef,
		DueDate:             inv.DueDate,
		PaidAt:              inv.PaidAt,
		AmountReceived:      inv.AmountReceived,
		RetentionAmount:     inv.RetentionAmount,
		ProofRef:            inv.ProofRef,
		Notes:               inv.Notes,
		Version:             inv.Version,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
	}
	if inv.PeriodMonth != nil {
		resp.PeriodMonth = lo.ToPtr(billing.MonthKey(*inv.PeriodMonth))
	}
	return resp
}

// ToInvoiceResponses converts a slice of domain invoices
func ToInvoiceResponses(invoices []billing.Invoice) []InvoiceResponse {
	return lo.Map(invoices, func(inv billing.Invoice, _ int) InvoiceResponse {
		return ToInvoiceResponse(&inv)
	})
}

// SummaryResponse is the API view of a project's billing summary
type SummaryResponse struct {
	ProjectID      uuid.UUID          `json:"project_id"`
	BaseCurrency   string             `json:"base_currency"`
	TotalBilled    decimal.Decimal    `json:"total_billed"`
	TotalPaid      decimal.Decimal    `json:"total_paid"`
	TotalPending   decimal.Decimal    `json:"total_pending"`
	TotalRetention decimal.Decimal    `json:"total_retention"`
	TotalTaxOwed   decimal.Decimal    `json:"total_tax_owed"`
	CountByStatus  map[string]int     `json:"count_by_status"`
	ByType         []TypeGroupSummary `json:"by_type"`
	InvoiceCount   int                `json:"invoice_count"`
}

// TypeGroupSummary is one invoice_type bucket of a summary
type TypeGroupSummary struct {
	InvoiceType         string            `json:"invoice_type"`
	Count               int               `json:"count"`
	TotalInBaseCurrency decimal.Decimal   `json:"total_in_base_currency"`
	Invoices            []InvoiceResponse `json:"invoices"`
}

// ToSummaryResponse converts a domain summary
func ToSummaryResponse(s billing.BillingSummary, base valueobject.Currency) SummaryResponse {
	counts := make(map[string]int, len(s.CountByStatus))
	for status, n := range s.CountByStatus {
		counts[status.String()] = n
	}
	return SummaryResponse{
		ProjectID:      s.ProjectID,
		BaseCurrency:   base.String(),
		TotalBilled:    s.TotalBilled,
		TotalPaid:      s.TotalPaid,
		TotalPending:   s.TotalPending,
		TotalRetention: s.TotalRetention,
		TotalTaxOwed:   s.TotalTaxOwed,
		CountByStatus:  counts,
		ByType: lo.Map(s.ByType, func(g billing.TypeGroup, _ int) TypeGroupSummary {
			return TypeGroupSummary{
				InvoiceType:         g.InvoiceType.String(),
				Count:               g.Count,
				TotalInBaseCurrency: g.TotalInBaseCurrency,
				Invoices:            ToInvoiceResponses(g.Invoices),
			}
		}),
		InvoiceCount: s.InvoiceCount,
	}
}

// GenerateResult reports one GenerateRecurringInvoices call
type GenerateResult struct {
	ProjectID uuid.UUID `json:"project_id"`
	UpToMonth string    `json:"up_to_month"`
	Created   int       `json:"created"`
}
