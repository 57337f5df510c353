package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/gin-gonic/gin"
)

// BatchTrigger runs recurring generation for every active project now
type BatchTrigger interface {
	TriggerNow(ctx context.Context) (billingapp.BatchResult, error)
}

// BillingHandler serves project-level billing: recurring generation,
// summaries and reports.
type BillingHandler struct {
	BaseHandler
	ledger  LedgerService
	trigger BatchTrigger
}

// NewBillingHandler creates a new BillingHandler. trigger may be nil when
// the scheduler is disabled.
func NewBillingHandler(ledger LedgerService, trigger BatchTrigger) *BillingHandler {
	return &BillingHandler{ledger: ledger, trigger: trigger}
}

// GenerateRecurring godoc
// @Summary      Create the missing recurring invoices of a project
// @Description  Idempotent: months already billed are skipped.
// @Tags         billing
// @Router       /projects/{project_id}/recurring-invoices/generate [post]
func (h *BillingHandler) GenerateRecurring(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	var req GenerateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	terms, upTo, err := req.toTerms()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	created, err := h.ledger.GenerateRecurringInvoices(c.Request.Context(), projectID, terms, upTo)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, billingapp.GenerateResult{
		ProjectID: projectID,
		UpToMonth: billing.MonthKey(upTo),
		Created:   created,
	})
}

// RunRecurringBatch godoc
// @Summary      Run recurring generation for all active deals now
// @Tags         billing
// @Router       /recurring-invoices/run [post]
func (h *BillingHandler) RunRecurringBatch(c *gin.Context) {
	if h.trigger == nil {
		h.Error(c, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "recurring scheduler is not enabled")
		return
	}
	result, err := h.trigger.TriggerNow(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetSummary godoc
// @Summary      Billing totals of a project in the base currency
// @Tags         billing
// @Router       /projects/{project_id}/billing/summary [get]
func (h *BillingHandler) GetSummary(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	summary, err := h.ledger.GetSummary(c.Request.Context(), projectID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// GetReport godoc
// @Summary      Flat report rows of a project's invoices and totals
// @Tags         billing
// @Router       /projects/{project_id}/billing/report [get]
func (h *BillingHandler) GetReport(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	rows, err := h.ledger.Report(c.Request.Context(), projectID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// GetReportCSV godoc
// @Summary      Flat report as CSV
// @Tags         billing
// @Produce      text/csv
// @Router       /projects/{project_id}/billing/report.csv [get]
func (h *BillingHandler) GetReportCSV(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "project_id")
	if !ok {
		return
	}
	rows, err := h.ledger.Report(c.Request.Context(), projectID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// Rendered to a buffer so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := billingapp.WriteReportCSV(&buf, rows); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="billing-%s.csv"`, projectID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
