package router

import (
	"github.com/erp/billing/internal/interfaces/http/handler"
)

// InvoiceRoutes groups the invoice endpoints:
//
//	GET    /projects/:project_id/invoices
//	POST   /projects/:project_id/invoices
//	GET    /invoices/:id
//	PUT    /invoices/:id
//	DELETE /invoices/:id
//	POST   /invoices/:id/invoiced
//	POST   /invoices/:id/paid
//	POST   /invoices/:id/document-upload
func InvoiceRoutes(h *handler.InvoiceHandler) []RouteRegistrar {
	projects := NewDomainGroup("project-invoices", "/projects/:project_id").
		GET("/invoices", h.ListInvoices).
		POST("/invoices", h.CreateInvoice)

	invoices := NewDomainGroup("invoices", "/invoices").
		GET("/:id", h.GetInvoice).
		PUT("/:id", h.UpdateInvoice).
		DELETE("/:id", h.DeleteInvoice).
		POST("/:id/invoiced", h.MarkInvoiced).
		POST("/:id/paid", h.MarkPaid).
		POST("/:id/document-upload", h.RequestDocumentUpload)

	return []RouteRegistrar{projects, invoices}
}

// BillingRoutes groups recurring generation, summaries and reports
func BillingRoutes(h *handler.BillingHandler) []RouteRegistrar {
	projects := NewDomainGroup("project-billing", "/projects/:project_id")
	projects.POST("/recurring-invoices/generate", h.GenerateRecurring)
	projects.Group("billing", "/billing").
		GET("/summary", h.GetSummary).
		GET("/report", h.GetReport).
		GET("/report.csv", h.GetReportCSV)

	batch := NewDomainGroup("recurring-batch", "/recurring-invoices").
		POST("/run", h.RunRecurringBatch)

	return []RouteRegistrar{projects, batch}
}

// SystemRoutes mounts /health and /system/info at the root
func SystemRoutes(h *handler.SystemHandler) RouteRegistrar {
	root := NewDomainGroup("system", "")
	root.GET("/health", h.Health)
	root.GET("/system/info", h.GetSystemInfo)
	return root
}
