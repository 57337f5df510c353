package integration

import (
	"net/http"
	"strings"
	"testing"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/interfaces/http/handler"
	"github.com/erp/billing/internal/interfaces/http/middleware"
	"github.com/erp/billing/internal/interfaces/http/router"
	"github.com/erp/billing/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, ledger *billingapp.LedgerService) *gin.Engine {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())

	engine := gin.New()
	engine.Use(middleware.RequestID())
	router.NewRouter(engine).
		Register(router.InvoiceRoutes(handler.NewInvoiceHandler(ledger))...).
		Register(router.BillingRoutes(handler.NewBillingHandler(ledger, nil))...).
		Setup()
	return engine
}

func TestLedgerAPI_InvoiceLifecycle(t *testing.T) {
	tdb := NewTestDB(t)
	ledger, recorder := newLedger(t, tdb)
	api := newAPI(t, ledger)
	projectID := testutil.NewTestUUID("api-project")
	projectPath := "/api/v1/projects/" + projectID.String()

	w := testutil.DoJSON(t, api, http.MethodPost, projectPath+"/invoices", map[string]any{
		"invoice_type": "ADVANCE",
		"concept":      "Advance payment",
		"subtotal":     "1000",
		"has_tax":      true,
		"currency":     "USD",
	})
	testutil.RequireStatus(t, w, http.StatusCreated)
	created := testutil.Decode[billingapp.InvoiceResponse](t, w).Data
	assert.True(t, decimal.RequireFromString("1190").Equal(created.Total))
	assert.Equal(t, "PENDING", created.Status)
	invoicePath := "/api/v1/invoices/" + created.ID.String()

	w = testutil.DoJSON(t, api, http.MethodPost, invoicePath+"/invoiced", map[string]any{
		"invoice_number": "FE-101",
	})
	testutil.RequireStatus(t, w, http.StatusOK)
	assert.Equal(t, "INVOICED", testutil.Decode[billingapp.InvoiceResponse](t, w).Data.Status)

	w = testutil.DoJSON(t, api, http.MethodPost, invoicePath+"/paid", map[string]any{
		"paid_at":          "2024-03-20",
		"amount_received":  "1150",
		"retention_amount": "40",
	})
	testutil.RequireStatus(t, w, http.StatusOK)
	paid := testutil.Decode[billingapp.InvoiceResponse](t, w).Data
	assert.Equal(t, "PAID", paid.Status)
	require.NotNil(t, paid.RetentionAmount)
	assert.True(t, decimal.RequireFromString("40").Equal(*paid.RetentionAmount))

	t.Run("paid invoices cannot move or be deleted", func(t *testing.T) {
		w := testutil.DoJSON(t, api, http.MethodPost, invoicePath+"/invoiced", map[string]any{
			"invoice_number": "FE-102",
		})
		testutil.RequireStatus(t, w, http.StatusConflict)
		assert.Equal(t, "INVALID_TRANSITION", testutil.Decode[any](t, w).Error.Code)

		w = testutil.DoJSON(t, api, http.MethodDelete, invoicePath, nil)
		testutil.RequireStatus(t, w, http.StatusConflict)
		assert.Equal(t, "CANNOT_DELETE_PAID", testutil.Decode[any](t, w).Error.Code)
	})

	t.Run("recurring generation through the API is idempotent", func(t *testing.T) {
		body := map[string]any{
			"deal": map[string]any{
				"currency":         "USD",
				"recurring_amount": "500",
				"start_date":       "2024-01-15",
			},
			"up_to_month": "2024-03",
		}
		w := testutil.DoJSON(t, api, http.MethodPost, projectPath+"/recurring-invoices/generate", body)
		testutil.RequireStatus(t, w, http.StatusOK)
		first := testutil.Decode[billingapp.GenerateResult](t, w).Data
		assert.Positive(t, first.Created)
		assert.Equal(t, "2024-03", first.UpToMonth)

		w = testutil.DoJSON(t, api, http.MethodPost, projectPath+"/recurring-invoices/generate", body)
		testutil.RequireStatus(t, w, http.StatusOK)
		assert.Zero(t, testutil.Decode[billingapp.GenerateResult](t, w).Data.Created)

		w = testutil.DoJSON(t, api, http.MethodGet, projectPath+"/invoices?invoice_type=RECURRING", nil)
		testutil.RequireStatus(t, w, http.StatusOK)
		assert.Len(t, testutil.Decode[[]billingapp.InvoiceResponse](t, w).Data, first.Created)
	})

	t.Run("summary and report", func(t *testing.T) {
		w := testutil.DoJSON(t, api, http.MethodGet, projectPath+"/billing/summary", nil)
		testutil.RequireStatus(t, w, http.StatusOK)
		summary := testutil.Decode[billingapp.SummaryResponse](t, w).Data
		assert.Equal(t, 1, summary.CountByStatus["PAID"])
		assert.Equal(t, int(tdb.CountRecurring(projectID))+1, summary.InvoiceCount)

		w = testutil.DoJSON(t, api, http.MethodGet, projectPath+"/billing/report.csv", nil)
		testutil.RequireStatus(t, w, http.StatusOK)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.True(t, strings.HasPrefix(w.Body.String(), strings.Join(billing.ReportHeader, ",")+"\n"))
	})

	assert.Equal(t, 1, recorder.Count(billing.EventTypeInvoicePaid))
	assert.Equal(t, 1, recorder.Count(billing.EventTypeRecurringInvoicesGenerated))
}
