package handler

import (
	"context"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) CreateInvoice(ctx context.Context, req billingapp.CreateInvoiceRequest) (*billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, req)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *MockLedgerService) GetInvoice(ctx context.Context, id uuid.UUID) (*billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, id)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *MockLedgerService) ListInvoices(ctx context.Context, projectID uuid.UUID, filter billingapp.ListInvoicesFilter) ([]billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, projectID, filter)
	if v := args.Get(0); v != nil {
		return v.([]billingapp.InvoiceResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerService) UpdateInvoice(ctx context.Context, id uuid.UUID, edit billing.InvoiceEdit) (*billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, id, edit)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *MockLedgerService) MarkInvoiced(ctx context.Context, id uuid.UUID, req billingapp.MarkInvoicedRequest) (*billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *MockLedgerService) MarkPaid(ctx context.Context, id uuid.UUID, req billingapp.MarkPaidRequest) (*billingapp.InvoiceResponse, error) {
	args := m.Called(ctx, id, req)
	return invoiceArg(args, 0), args.Error(1)
}

func (m *MockLedgerService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLedgerService) RequestDocumentUpload(ctx context.Context, id uuid.UUID, req billingapp.DocumentUploadRequest) (*billingapp.DocumentUploadResponse, error) {
	args := m.Called(ctx, id, req)
	if v := args.Get(0); v != nil {
		return v.(*billingapp.DocumentUploadResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerService) GenerateRecurringInvoices(ctx context.Context, projectID uuid.UUID, deal billing.DealTerms, upToMonth time.Time) (int, error) {
	args := m.Called(ctx, projectID, deal, upToMonth)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerService) GetSummary(ctx context.Context, projectID uuid.UUID) (*billingapp.SummaryResponse, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*billingapp.SummaryResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerService) Report(ctx context.Context, projectID uuid.UUID) ([]billing.ReportRow, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]billing.ReportRow), args.Error(1)
	}
	return nil, args.Error(1)
}

func invoiceArg(args mock.Arguments, i int) *billingapp.InvoiceResponse {
	if v := args.Get(i); v != nil {
		return v.(*billingapp.InvoiceResponse)
	}
	return nil
}

type MockBatchTrigger struct {
	mock.Mock
}

func (m *MockBatchTrigger) TriggerNow(ctx context.Context) (billingapp.BatchResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(billingapp.BatchResult), args.Error(1)
}
