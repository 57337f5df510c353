package handler

import (
	"context"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerService is the part of the invoice ledger the HTTP API drives
type LedgerService interface {
	CreateInvoice(ctx context.Context, req billingapp.CreateInvoiceRequest) (*billingapp.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*billingapp.InvoiceResponse, error)
	ListInvoices(ctx context.Context, projectID uuid.UUID, filter billingapp.ListInvoicesFilter) ([]billingapp.InvoiceResponse, error)
	UpdateInvoice(ctx context.Context, id uuid.UUID, edit billing.InvoiceEdit) (*billingapp.InvoiceResponse, error)
	MarkInvoiced(ctx context.Context, id uuid.UUID, req billingapp.MarkInvoicedRequest) (*billingapp.InvoiceResponse, error)
	MarkPaid(ctx context.Context, id uuid.UUID, req billingapp.MarkPaidRequest) (*billingapp.InvoiceResponse, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
	RequestDocumentUpload(ctx context.Context, id uuid.UUID, req billingapp.DocumentUploadRequest) (*billingapp.DocumentUploadResponse, error)
	GenerateRecurringInvoices(ctx context.Context, projectID uuid.UUID, deal billing.DealTerms, upToMonth time.Time) (int, error)
	GetSummary(ctx context.Context, projectID uuid.UUID) (*billingapp.SummaryResponse, error)
	Report(ctx context.Context, projectID uuid.UUID) ([]billing.ReportRow, error)
}

// InvoiceHandler serves single-invoice operations and project invoice lists
type InvoiceHandler struct {
	BaseHandler
	ledger LedgerService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(ledger LedgerService) *InvoiceHandler {
	return &InvoiceHandler{ledger: ledger}
}

// ListInvoices godoc
// @Summary      List a project's invoices
// @Tags         invoices
// @Param        project_id    path   string true  "Project ID"
// @Param        status        query  string false "PENDING, INVOICED or PAID"
// @Param        invoice_type  query  string false "ADVANCE, IMPLEMENTATION or RECURRING"
// @Router       /projects/{project_id}/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	var query ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	invoices, err := h.ledger.ListInvoices(c.Request.Context(), projectID, billingapp.ListInvoicesFilter{
		Status:      billing.InvoiceStatus(query.Status),
		InvoiceType: billing.InvoiceType(query.InvoiceType),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoices)
}

// CreateInvoice godoc
// @Summary      Create an invoice
// @Tags         invoices
// @Param        project_id  path  string               true "Project ID"
// @Param        request     body  CreateInvoiceRequest true "Invoice"
// @Router       /projects/{project_id}/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	appReq, err := req.toApp(projectID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	inv, err := h.ledger.CreateInvoice(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inv)
}

// GetInvoice godoc
// @Summary      Get an invoice
// @Tags         invoices
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	inv, err := h.ledger.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// UpdateInvoice godoc
// @Summary      Edit an invoice
// @Description  Amounts are recomputed when any monetary field changes. Paid invoices accept notes only.
// @Tags         invoices
// @Router       /invoices/{id} [put]
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	edit, err := req.toEdit()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	inv, err := h.ledger.UpdateInvoice(c.Request.Context(), id, edit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// DeleteInvoice godoc
// @Summary      Delete an unpaid invoice
// @Tags         invoices
// @Router       /invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// MarkInvoiced godoc
// @Summary      Attach the issued invoice number
// @Tags         invoices
// @Router       /invoices/{id}/invoiced [post]
func (h *InvoiceHandler) MarkInvoiced(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req MarkInvoicedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.ledger.MarkInvoiced(c.Request.Context(), id, billingapp.MarkInvoicedRequest{
		InvoiceNumber: req.InvoiceNumber,
		DocumentRef:   req.DocumentRef,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// MarkPaid godoc
// @Summary      Record the payment of an invoice
// @Tags         invoices
// @Router       /invoices/{id}/paid [post]
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	payment, err := req.toApp()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	inv, err := h.ledger.MarkPaid(c.Request.Context(), id, payment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// RequestDocumentUpload godoc
// @Summary      Get a presigned URL for an invoice document or payment proof
// @Tags         invoices
// @Router       /invoices/{id}/document-upload [post]
func (h *InvoiceHandler) RequestDocumentUpload(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req DocumentUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	upload, err := h.ledger.RequestDocumentUpload(c.Request.Context(), id, billingapp.DocumentUploadRequest{
		Kind:        billingapp.DocumentKind(req.Kind),
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, upload)
}
