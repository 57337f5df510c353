package handler

import (
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/erp/billing/internal/interfaces/http/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dates travel as YYYY-MM-DD and months as YYYY-MM. paid_at also accepts RFC 3339.

// ListInvoicesQuery filters a project's invoices
type ListInvoicesQuery struct {
	Status      string `form:"status" binding:"omitempty,oneof=PENDING INVOICED PAID"`
	InvoiceType string `form:"invoice_type" binding:"omitempty,oneof=ADVANCE IMPLEMENTATION RECURRING"`
}

// CreateInvoiceRequest is the body of POST /projects/:project_id/invoices
type CreateInvoiceRequest struct {
	InvoiceType  string           `json:"invoice_type" binding:"required,oneof=ADVANCE IMPLEMENTATION RECURRING"`
	Concept      string           `json:"concept" binding:"required,max=255"`
	Subtotal     decimal.Decimal  `json:"subtotal"`
	HasTax       bool             `json:"has_tax"`
	Currency     string           `json:"currency" binding:"required,currency"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
	PeriodMonth  *string          `json:"period_month" binding:"omitempty,yyyymm"`
	DueDate      *string          `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Notes        string           `json:"notes" binding:"max=2000"`
}

func (r CreateInvoiceRequest) toApp(projectID uuid.UUID) (billingapp.CreateInvoiceRequest, error) {
	currency, err := valueobject.ParseCurrency(r.Currency)
	if err != nil {
		return billingapp.CreateInvoiceRequest{}, err
	}
	req := billingapp.CreateInvoiceRequest{
		ProjectID:    projectID,
		InvoiceType:  billing.InvoiceType(r.InvoiceType),
		Concept:      r.Concept,
		Subtotal:     r.Subtotal,
		HasTax:       r.HasTax,
		Currency:     currency,
		ExchangeRate: r.ExchangeRate,
		Notes:        r.Notes,
	}
	if r.PeriodMonth != nil {
		month, err := billing.ParseMonth(*r.PeriodMonth)
		if err != nil {
			return billingapp.CreateInvoiceRequest{}, err
		}
		req.PeriodMonth = &month
	}
	if req.DueDate, err = parseDatePtr(r.DueDate); err != nil {
		return billingapp.CreateInvoiceRequest{}, err
	}
	return req, nil
}

// UpdateInvoiceRequest is the body of PUT /invoices/:id. Absent fields are
// left unchanged.
type UpdateInvoiceRequest struct {
	Concept      *string          `json:"concept" binding:"omitempty,min=1,max=255"`
	Subtotal     *decimal.Decimal `json:"subtotal"`
	HasTax       *bool            `json:"has_tax"`
	Currency     *string          `json:"currency" binding:"omitempty,currency"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
	DueDate      *string          `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Notes        *string          `json:"notes" binding:"omitempty,max=2000"`
}

func (r UpdateInvoiceRequest) toEdit() (billing.InvoiceEdit, error) {
	edit := billing.InvoiceEdit{
		Concept:      r.Concept,
		Subtotal:     r.Subtotal,
		HasTax:       r.HasTax,
		ExchangeRate: r.ExchangeRate,
		Notes:        r.Notes,
	}
	if r.Currency != nil {
		currency, err := valueobject.ParseCurrency(*r.Currency)
		if err != nil {
			return billing.InvoiceEdit{}, err
		}
		edit.Currency = &currency
	}
	var err error
	if edit.DueDate, err = parseDatePtr(r.DueDate); err != nil {
		return billing.InvoiceEdit{}, err
	}
	return edit, nil
}

// MarkInvoicedRequest is the body of POST /invoices/:id/invoiced
type MarkInvoicedRequest struct {
	InvoiceNumber string `json:"invoice_number" binding:"required_without=DocumentRef,max=64"`
	DocumentRef   string `json:"document_ref" binding:"max=512"`
}

// MarkPaidRequest is the body of POST /invoices/:id/paid
type MarkPaidRequest struct {
	PaidAt          string           `json:"paid_at" binding:"required,timestamp"`
	AmountReceived  decimal.Decimal  `json:"amount_received"`
	RetentionAmount *decimal.Decimal `json:"retention_amount"`
	ProofRef        string           `json:"proof_ref" binding:"max=512"`
}

func (r MarkPaidRequest) toApp() (billingapp.MarkPaidRequest, error) {
	paidAt, err := middleware.ParseTimestamp(r.PaidAt)
	if err != nil {
		return billingapp.MarkPaidRequest{}, err
	}
	return billingapp.MarkPaidRequest{
		PaidAt:          paidAt,
		AmountReceived:  r.AmountReceived,
		RetentionAmount: r.RetentionAmount,
		ProofRef:        r.ProofRef,
	}, nil
}

// DocumentUploadRequest is the body of POST /invoices/:id/document-upload
type DocumentUploadRequest struct {
	Kind        string `json:"kind" binding:"required,oneof=document proof"`
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"max=128"`
}

// DealTermsRequest carries the deal terms recurring generation runs against
type DealTermsRequest struct {
	Currency           string           `json:"currency" binding:"required,currency"`
	RecurringAmount    decimal.Decimal  `json:"recurring_amount"`
	ExchangeRate       *decimal.Decimal `json:"exchange_rate"`
	StartDate          string           `json:"start_date" binding:"required,datetime=2006-01-02"`
	BillingStartDate   *string          `json:"billing_start_date" binding:"omitempty,datetime=2006-01-02"`
	FirstPeriodCovered bool             `json:"first_period_covered"`
}

// GenerateRecurringRequest is the body of POST /projects/:project_id/recurring-invoices/generate
type GenerateRecurringRequest struct {
	Deal      DealTermsRequest `json:"deal"`
	UpToMonth string           `json:"up_to_month" binding:"required,yyyymm"`
}

func (r GenerateRecurringRequest) toTerms() (billing.DealTerms, time.Time, error) {
	currency, err := valueobject.ParseCurrency(r.Deal.Currency)
	if err != nil {
		return billing.DealTerms{}, time.Time{}, err
	}
	start, err := time.Parse(time.DateOnly, r.Deal.StartDate)
	if err != nil {
		return billing.DealTerms{}, time.Time{}, err
	}
	billingStart, err := parseDatePtr(r.Deal.BillingStartDate)
	if err != nil {
		return billing.DealTerms{}, time.Time{}, err
	}
	upTo, err := billing.ParseMonth(r.UpToMonth)
	if err != nil {
		return billing.DealTerms{}, time.Time{}, err
	}
	return billing.DealTerms{
		Currency:           currency,
		RecurringAmount:    r.Deal.RecurringAmount,
		ExchangeRate:       r.Deal.ExchangeRate,
		StartDate:          start,
		BillingStartDate:   billingStart,
		FirstPeriodCovered: r.Deal.FirstPeriodCovered,
	}, upTo, nil
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
