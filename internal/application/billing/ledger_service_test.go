package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func copDeal() billing.DealTerms {
	return billing.DealTerms{
		Currency:           "COP",
		RecurringAmount:    dec("4000000"),
		ExchangeRate:       lo.ToPtr(dec("4000")),
		StartDate:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		FirstPeriodCovered: true,
	}
}

func newTestService(repo billing.InvoiceRepository, opts ...LedgerServiceOption) *LedgerService {
	opts = append([]LedgerServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLedgerService(repo, billing.DefaultCalculator(), opts...)
}

func createAdvance(t *testing.T, svc *LedgerService, projectID uuid.UUID) *InvoiceResponse {
	t.Helper()
	resp, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		ProjectID:   projectID,
		InvoiceType: billing.InvoiceTypeAdvance,
		Concept:     "Advance payment",
		Subtotal:    dec("1000"),
		HasTax:      true,
		Currency:    valueobject.USD,
	})
	require.NoError(t, err)
	return resp
}

func TestLedgerService_GenerateRecurringInvoices(t *testing.T) {
	ctx := context.Background()

	t.Run("creates one invoice per missing month after the covered first period", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		projectID := uuid.New()

		created, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
		require.NoError(t, err)
		assert.Equal(t, 3, created)

		invoices, err := repo.FindInvoices(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, invoices, 3)

		wantMonths := []string{"2024-02", "2024-03", "2024-04"}
		for i, inv := range invoices {
			assert.Equal(t, billing.InvoiceTypeRecurring, inv.InvoiceType)
			assert.Equal(t, billing.InvoiceStatusPending, inv.Status)
			require.NotNil(t, inv.PeriodMonth)
			assert.Equal(t, wantMonths[i], billing.MonthKey(*inv.PeriodMonth))
			assert.True(t, inv.HasTax)
			assert.True(t, inv.TaxAmount.Equal(dec("760000")), "tax %s", inv.TaxAmount)
			assert.True(t, inv.Total.Equal(dec("4760000")), "total %s", inv.Total)
			assert.True(t, inv.TotalInBaseCurrency.Equal(dec("1190")), "base %s", inv.TotalInBaseCurrency)
		}
		assert.Equal(t, "Recurring fee — February 2024", invoices[0].Concept)
	})

	t.Run("repeating a call creates nothing", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		projectID := uuid.New()

		_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
		require.NoError(t, err)

		created, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Equal(t, 3, repo.count())
	})

	t.Run("extending the horizon only fills the new months", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		projectID := uuid.New()

		_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.March))
		require.NoError(t, err)

		created, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.May))
		require.NoError(t, err)
		assert.Equal(t, 2, created)
		assert.Equal(t, 4, repo.count())
	})

	t.Run("manually created period is skipped", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		projectID := uuid.New()

		_, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ProjectID:    projectID,
			InvoiceType:  billing.InvoiceTypeRecurring,
			Concept:      "March fee",
			Subtotal:     dec("4000000"),
			HasTax:       true,
			Currency:     "COP",
			ExchangeRate: lo.ToPtr(dec("4000")),
			PeriodMonth:  lo.ToPtr(month(2024, time.March)),
		})
		require.NoError(t, err)

		created, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
		require.NoError(t, err)
		assert.Equal(t, 2, created)
		assert.Equal(t, 3, repo.count())
	})

	t.Run("upToMonth before the anchor creates nothing", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)

		created, err := svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), month(2024, time.January))
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("foreign currency deal without rate fails and writes nothing", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		deal := copDeal()
		deal.ExchangeRate = nil

		created, err := svc.GenerateRecurringInvoices(ctx, uuid.New(), deal, month(2024, time.April))
		require.Error(t, err)
		assert.True(t, errors.Is(err, billing.ErrInvalidExchangeRate))
		assert.Equal(t, 0, created)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("insert failure rolls back the whole project", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		repo.insertErr = errors.New("connection reset")
		svc := newTestService(repo)

		created, err := svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), month(2024, time.April))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2024-02")
		assert.Equal(t, 0, created)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("rejects empty project and zero month", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		_, err := svc.GenerateRecurringInvoices(ctx, uuid.Nil, copDeal(), month(2024, time.April))
		assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))

		_, err = svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), time.Time{})
		assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
	})

	t.Run("runs under the project lock", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)

		_, err := svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), month(2024, time.April))
		require.NoError(t, err)
		assert.Equal(t, 1, repo.lockRuns)
	})

	t.Run("publishes created events and one generation event", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		pub := &recordingPublisher{}
		svc := newTestService(repo, WithEventPublisher(pub))

		_, err := svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), month(2024, time.April))
		require.NoError(t, err)
		assert.Equal(t, []string{
			billing.EventTypeInvoiceCreated,
			billing.EventTypeInvoiceCreated,
			billing.EventTypeInvoiceCreated,
			billing.EventTypeRecurringInvoicesGenerated,
		}, pub.eventTypes())

		generated, ok := pub.last().(*billing.RecurringInvoicesGeneratedEvent)
		require.True(t, ok)
		assert.Equal(t, []time.Time{
			month(2024, time.February),
			month(2024, time.March),
			month(2024, time.April),
		}, generated.Periods)

		_, err = svc.GenerateRecurringInvoices(ctx, uuid.New(), copDeal(), month(2024, time.January))
		require.NoError(t, err)
		assert.Len(t, pub.eventTypes(), 4)
	})

	t.Run("localized concept", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo, WithConceptFormatter(billing.NewConceptFormatter("Fee mensual", "es-CO")))
		projectID := uuid.New()

		_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.February))
		require.NoError(t, err)

		invoices, err := repo.FindInvoices(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.Equal(t, "Fee mensual — Febrero 2024", invoices[0].Concept)
	})
}

func TestLedgerService_CreateInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("computes derived amounts", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		resp := createAdvance(t, svc, uuid.New())
		assert.Equal(t, "PENDING", resp.Status)
		assert.True(t, resp.TaxAmount.Equal(dec("190")))
		assert.True(t, resp.Total.Equal(dec("1190")))
		assert.True(t, resp.TotalInBaseCurrency.Equal(dec("1190")))
		assert.Nil(t, resp.PeriodMonth)
	})

	t.Run("duplicate recurring period", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		projectID := uuid.New()
		req := CreateInvoiceRequest{
			ProjectID:   projectID,
			InvoiceType: billing.InvoiceTypeRecurring,
			Concept:     "May fee",
			Subtotal:    dec("500"),
			Currency:    valueobject.USD,
			PeriodMonth: lo.ToPtr(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)),
		}

		resp, err := svc.CreateInvoice(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, resp.PeriodMonth)
		assert.Equal(t, "2024-05", *resp.PeriodMonth)

		_, err = svc.CreateInvoice(ctx, req)
		assert.True(t, errors.Is(err, billing.ErrDuplicatePeriod))
	})

	t.Run("recurring without period is invalid", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		_, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ProjectID:   uuid.New(),
			InvoiceType: billing.InvoiceTypeRecurring,
			Concept:     "Fee",
			Subtotal:    dec("500"),
			Currency:    valueobject.USD,
		})
		assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
	})

	t.Run("foreign currency without rate", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		_, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ProjectID:   uuid.New(),
			InvoiceType: billing.InvoiceTypeImplementation,
			Concept:     "Implementation",
			Subtotal:    dec("4000000"),
			Currency:    "COP",
		})
		assert.True(t, errors.Is(err, billing.ErrInvalidExchangeRate))
	})

	t.Run("default due date from issue date", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository(), WithDefaultDueDays(30))

		resp := createAdvance(t, svc, uuid.New())
		require.NotNil(t, resp.DueDate)
		assert.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), *resp.DueDate)
	})

	t.Run("default due date from period month", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository(), WithDefaultDueDays(30))

		resp, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ProjectID:   uuid.New(),
			InvoiceType: billing.InvoiceTypeRecurring,
			Concept:     "May fee",
			Subtotal:    dec("500"),
			Currency:    valueobject.USD,
			PeriodMonth: lo.ToPtr(month(2024, time.May)),
		})
		require.NoError(t, err)
		require.NotNil(t, resp.DueDate)
		assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), *resp.DueDate)
	})

	t.Run("supplied due date wins", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository(), WithDefaultDueDays(30))

		resp, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
			ProjectID:   uuid.New(),
			InvoiceType: billing.InvoiceTypeAdvance,
			Concept:     "Advance",
			Subtotal:    dec("100"),
			Currency:    valueobject.USD,
			DueDate:     lo.ToPtr(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)),
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *resp.DueDate)
	})

	t.Run("publishes created event", func(t *testing.T) {
		pub := new(MockEventPublisher)
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			return len(events) == 1 && events[0].EventType() == billing.EventTypeInvoiceCreated
		})).Return(nil).Once()
		svc := newTestService(newMemoryInvoiceRepository(), WithEventPublisher(pub))

		createAdvance(t, svc, uuid.New())
		pub.AssertExpectations(t)
	})

	t.Run("publish failure does not fail the call", func(t *testing.T) {
		pub := new(MockEventPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus stopped"))
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo, WithEventPublisher(pub))

		createAdvance(t, svc, uuid.New())
		assert.Equal(t, 1, repo.count())
	})
}

func TestLedgerService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to invoiced to paid", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())

		invoiced, err := svc.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{InvoiceNumber: "FE-101"})
		require.NoError(t, err)
		assert.Equal(t, "INVOICED", invoiced.Status)
		assert.Equal(t, "FE-101", invoiced.InvoiceNumber)

		paid, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{
			PaidAt:         fixedNow,
			AmountReceived: dec("1150"),
		})
		require.NoError(t, err)
		assert.Equal(t, "PAID", paid.Status)
		require.NotNil(t, paid.AmountReceived)
		assert.True(t, paid.AmountReceived.Equal(dec("1150")))
	})

	t.Run("pending can be paid directly", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())

		paid, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1190")})
		require.NoError(t, err)
		assert.Equal(t, "PAID", paid.Status)
	})

	t.Run("paying a paid invoice is an invalid transition", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())
		_, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1190")})
		require.NoError(t, err)

		_, err = svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1190")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, billing.ErrInvalidTransition))

		stored, err := svc.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, stored.AmountReceived.Equal(dec("1190")))
	})

	t.Run("invoicing an invoiced invoice is an invalid transition", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())
		_, err := svc.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{})
		require.NoError(t, err)

		_, err = svc.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{})
		var te *billing.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, billing.InvoiceStatusInvoiced, te.Current)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		_, err := svc.MarkInvoiced(ctx, uuid.New(), MarkInvoicedRequest{})
		assert.True(t, errors.Is(err, billing.ErrNotFound))
		_, err = svc.GetInvoice(ctx, uuid.New())
		assert.True(t, errors.Is(err, billing.ErrNotFound))
	})

	t.Run("stale status loses the race", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		inv := createAdvance(t, svc, uuid.New())

		stale := &staleReadRepository{memoryInvoiceRepository: repo}
		snapshot, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		stale.snapshot = snapshot
		repo.setStatus(inv.ID, billing.InvoiceStatusPaid)

		racing := newTestService(stale)
		_, err = racing.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{InvoiceNumber: "FE-9"})
		var te *billing.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, billing.InvoiceStatusPaid, te.Current)
		assert.Equal(t, "mark invoiced", te.Attempted)

		stored, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, stored.Status)
		assert.Empty(t, stored.InvoiceNumber)
	})
}

// staleReadRepository serves a fixed snapshot from FindByID while writes go
// to the live store
type staleReadRepository struct {
	*memoryInvoiceRepository
	snapshot *billing.Invoice
}

func (r *staleReadRepository) FindByID(_ context.Context, _ uuid.UUID) (*billing.Invoice, error) {
	inv := *r.snapshot
	return &inv, nil
}

func TestLedgerService_UpdateInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("amount edit recomputes totals", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())

		resp, err := svc.UpdateInvoice(ctx, inv.ID, billing.InvoiceEdit{Subtotal: lo.ToPtr(dec("2000"))})
		require.NoError(t, err)
		assert.True(t, resp.TaxAmount.Equal(dec("380")))
		assert.True(t, resp.Total.Equal(dec("2380")))
		assert.Equal(t, inv.Version+1, resp.Version)
	})

	t.Run("paid invoice keeps its amounts", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())
		_, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1190")})
		require.NoError(t, err)

		_, err = svc.UpdateInvoice(ctx, inv.ID, billing.InvoiceEdit{Subtotal: lo.ToPtr(dec("1"))})
		assert.True(t, errors.Is(err, billing.ErrInvalidTransition))

		resp, err := svc.UpdateInvoice(ctx, inv.ID, billing.InvoiceEdit{Notes: lo.ToPtr("settled early")})
		require.NoError(t, err)
		assert.Equal(t, "settled early", resp.Notes)
		assert.True(t, resp.Total.Equal(dec("1190")))
	})

	t.Run("empty edit is a no-op", func(t *testing.T) {
		pub := new(MockEventPublisher)
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())
		svc.publisher = pub

		resp, err := svc.UpdateInvoice(ctx, inv.ID, billing.InvoiceEdit{})
		require.NoError(t, err)
		assert.Equal(t, inv.Version, resp.Version)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestLedgerService_DeleteInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes a pending invoice", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		pub := &recordingPublisher{}
		svc := newTestService(repo, WithEventPublisher(pub))
		inv := createAdvance(t, svc, uuid.New())

		require.NoError(t, svc.DeleteInvoice(ctx, inv.ID))
		assert.Equal(t, 0, repo.count())
		assert.Equal(t, []string{billing.EventTypeInvoiceCreated, billing.EventTypeInvoiceDeleted}, pub.eventTypes())
	})

	t.Run("paid invoice cannot be deleted", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		inv := createAdvance(t, svc, uuid.New())
		_, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1190")})
		require.NoError(t, err)

		err = svc.DeleteInvoice(ctx, inv.ID)
		assert.True(t, errors.Is(err, billing.ErrCannotDeletePaid))
		assert.Equal(t, 1, repo.count())
	})

	t.Run("paid between read and delete", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		inv := createAdvance(t, svc, uuid.New())

		stale := &staleReadRepository{memoryInvoiceRepository: repo}
		stale.snapshot, _ = repo.FindByID(ctx, inv.ID)
		repo.setStatus(inv.ID, billing.InvoiceStatusPaid)

		err := newTestService(stale).DeleteInvoice(ctx, inv.ID)
		assert.True(t, errors.Is(err, billing.ErrCannotDeletePaid))
		assert.Equal(t, 1, repo.count())
	})
}

func TestLedgerService_ListInvoices(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryInvoiceRepository()
	svc := newTestService(repo)
	projectID := uuid.New()

	_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
	require.NoError(t, err)
	adv := createAdvance(t, svc, projectID)
	_, err = svc.MarkInvoiced(ctx, adv.ID, MarkInvoicedRequest{})
	require.NoError(t, err)
	createAdvance(t, svc, uuid.New())

	all, err := svc.ListInvoices(ctx, projectID, ListInvoicesFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	recurring, err := svc.ListInvoices(ctx, projectID, ListInvoicesFilter{InvoiceType: billing.InvoiceTypeRecurring})
	require.NoError(t, err)
	assert.Len(t, recurring, 3)

	invoiced, err := svc.ListInvoices(ctx, projectID, ListInvoicesFilter{Status: billing.InvoiceStatusInvoiced})
	require.NoError(t, err)
	require.Len(t, invoiced, 1)
	assert.Equal(t, adv.ID, invoiced[0].ID)

	_, err = svc.ListInvoices(ctx, projectID, ListInvoicesFilter{Status: "VOID"})
	assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
	_, err = svc.ListInvoices(ctx, projectID, ListInvoicesFilter{InvoiceType: "ONE_OFF"})
	assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
}

func TestLedgerService_GetSummary(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryInvoiceRepository()
	svc := newTestService(repo)
	projectID := uuid.New()

	_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.April))
	require.NoError(t, err)
	invoices, err := svc.ListInvoices(ctx, projectID, ListInvoicesFilter{})
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, invoices[0].ID, MarkPaidRequest{
		PaidAt:          fixedNow,
		AmountReceived:  dec("4600000"),
		RetentionAmount: lo.ToPtr(dec("160000")),
	})
	require.NoError(t, err)

	summary, err := svc.GetSummary(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "USD", summary.BaseCurrency)
	assert.Equal(t, 3, summary.InvoiceCount)
	assert.True(t, summary.TotalTaxOwed.Equal(dec("760000")), "tax owed %s", summary.TotalTaxOwed)
	assert.True(t, summary.TotalRetention.Equal(dec("160000")))
	assert.True(t, summary.TotalPending.Equal(dec("2380")))
	assert.True(t, summary.TotalBilled.Equal(dec("1190")))
	assert.Equal(t, map[string]int{"PENDING": 2, "INVOICED": 0, "PAID": 1}, summary.CountByStatus)

	require.Len(t, summary.ByType, 3)
	recurring, ok := lo.Find(summary.ByType, func(g TypeGroupSummary) bool { return g.InvoiceType == "RECURRING" })
	require.True(t, ok)
	assert.Equal(t, 3, recurring.Count)
	assert.True(t, recurring.TotalInBaseCurrency.Equal(dec("3570")))
}

func TestLedgerService_Report(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryInvoiceRepository())
	projectID := uuid.New()

	_, err := svc.GenerateRecurringInvoices(ctx, projectID, copDeal(), month(2024, time.March))
	require.NoError(t, err)

	rows, err := svc.Report(ctx, projectID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	concepts := lo.Map(rows, func(r billing.ReportRow, _ int) string { return r.Record()[2] })
	assert.Contains(t, concepts, "Recurring fee — February 2024")
	assert.Contains(t, concepts, "Recurring fee — March 2024")
}

func TestLedgerService_DocumentReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document ref is rejected", func(t *testing.T) {
		docs := new(MockDocumentStore)
		docs.On("Exists", mock.Anything, "projects/x/missing.pdf").Return(false, nil)
		svc := newTestService(newMemoryInvoiceRepository(), WithDocumentStore(docs))
		inv := createAdvance(t, svc, uuid.New())

		_, err := svc.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{DocumentRef: "projects/x/missing.pdf"})
		assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
		assert.Contains(t, err.Error(), "document_ref")

		stored, err := svc.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "PENDING", stored.Status)
		docs.AssertExpectations(t)
	})

	t.Run("existing proof ref is attached", func(t *testing.T) {
		docs := new(MockDocumentStore)
		docs.On("Exists", mock.Anything, "proofs/p.png").Return(true, nil)
		svc := newTestService(newMemoryInvoiceRepository(), WithDocumentStore(docs))
		inv := createAdvance(t, svc, uuid.New())

		resp, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{
			PaidAt:         fixedNow,
			AmountReceived: dec("1190"),
			ProofRef:       "proofs/p.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "proofs/p.png", resp.ProofRef)
	})

	t.Run("store errors surface", func(t *testing.T) {
		docs := new(MockDocumentStore)
		docs.On("Exists", mock.Anything, mock.Anything).Return(false, errors.New("timeout"))
		svc := newTestService(newMemoryInvoiceRepository(), WithDocumentStore(docs))
		inv := createAdvance(t, svc, uuid.New())

		_, err := svc.MarkPaid(ctx, inv.ID, MarkPaidRequest{PaidAt: fixedNow, AmountReceived: dec("1"), ProofRef: "p"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("no store means refs are not checked", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())
		inv := createAdvance(t, svc, uuid.New())

		resp, err := svc.MarkInvoiced(ctx, inv.ID, MarkInvoicedRequest{DocumentRef: "anything"})
		require.NoError(t, err)
		assert.Equal(t, "anything", resp.DocumentRef)
	})
}

func TestLedgerService_RequestDocumentUpload(t *testing.T) {
	ctx := context.Background()
	expires := fixedNow.Add(15 * time.Minute)

	t.Run("presigns a key under the invoice", func(t *testing.T) {
		docs := new(MockDocumentStore)
		docs.On("PresignUpload", mock.Anything, mock.AnythingOfType("string"), "application/pdf").
			Return("https://s3.example/upload", expires, nil)
		svc := newTestService(newMemoryInvoiceRepository(), WithDocumentStore(docs))
		projectID := uuid.New()
		inv := createAdvance(t, svc, projectID)

		resp, err := svc.RequestDocumentUpload(ctx, inv.ID, DocumentUploadRequest{
			Kind:        DocumentKindInvoice,
			FileName:    "FE-101.PDF",
			ContentType: "application/pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://s3.example/upload", resp.UploadURL)
		assert.Equal(t, expires, resp.ExpiresAt)
		prefix := "projects/" + projectID.String() + "/invoices/" + inv.ID.String() + "/document/"
		assert.True(t, strings.HasPrefix(resp.Key, prefix), resp.Key)
		assert.True(t, strings.HasSuffix(resp.Key, ".pdf"), resp.Key)
		docs.AssertExpectations(t)
	})

	t.Run("unknown kind", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository(), WithDocumentStore(new(MockDocumentStore)))
		inv := createAdvance(t, svc, uuid.New())

		_, err := svc.RequestDocumentUpload(ctx, inv.ID, DocumentUploadRequest{Kind: "receipt"})
		assert.Equal(t, shared.ErrInvalidInput.Code, shared.CodeOf(err))
	})

	t.Run("storage not configured", func(t *testing.T) {
		svc := newTestService(newMemoryInvoiceRepository())

		_, err := svc.RequestDocumentUpload(ctx, uuid.New(), DocumentUploadRequest{Kind: DocumentKindProof})
		assert.True(t, errors.Is(err, ErrStorageUnavailable))
	})
}

func TestFileExt(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"invoice.pdf", ".pdf"},
		{"SCAN.JPEG", ".jpeg"},
		{"noext", ""},
		{"weird.p d f", ""},
		{"archive.tar.gz", ".gz"},
		{"long.extension123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileExt(tt.name))
		})
	}
}
