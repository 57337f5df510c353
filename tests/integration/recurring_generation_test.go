package integration

import (
	"context"
	"testing"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/infrastructure/event"
	"github.com/erp/billing/internal/infrastructure/persistence"
	"github.com/erp/billing/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLedger(t *testing.T, tdb *TestDB) (*billingapp.LedgerService, *testutil.RecordingHandler) {
	t.Helper()
	bus := event.NewInMemoryEventBus(zap.NewNop())
	recorder := testutil.NewRecordingHandler()
	bus.Subscribe(recorder)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	ledger := billingapp.NewLedgerService(
		persistence.NewGormInvoiceRepository(tdb.DB),
		billing.DefaultCalculator(),
		billingapp.WithEventPublisher(bus),
	)
	return ledger, recorder
}

func TestRecurringGeneration_ConcurrentCallers(t *testing.T) {
	tdb := NewTestDB(t)
	ledger, recorder := newLedger(t, tdb)
	ctx := testutil.ContextWithTimeout(t, time.Minute)

	projectID := testutil.NewTestUUID("concurrent-project")
	deal := billing.DealTerms{
		Currency:        "USD",
		RecurringAmount: decimal.RequireFromString("500"),
		StartDate:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	upTo := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	want := len(billing.MissingPeriods(deal, billing.NewPeriodSet(), upTo))
	require.Positive(t, want)

	p := pool.NewWithResults[int]().WithErrors().WithMaxGoroutines(8)
	for range 8 {
		p.Go(func() (int, error) {
			return ledger.GenerateRecurringInvoices(ctx, projectID, deal, upTo)
		})
	}
	created, err := p.Wait()
	require.NoError(t, err)

	total := 0
	for _, n := range created {
		total += n
	}
	assert.Equal(t, want, total, "each period is created by exactly one caller")
	assert.Equal(t, int64(want), tdb.CountRecurring(projectID))
	assert.Equal(t, 1, recorder.Count(billing.EventTypeRecurringInvoicesGenerated))

	again, err := ledger.GenerateRecurringInvoices(ctx, projectID, deal, upTo)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestRecurringBatchJob_ActiveDeals(t *testing.T) {
	tdb := NewTestDB(t)
	ledger, _ := newLedger(t, tdb)
	ctx := testutil.ContextWithTimeout(t, time.Minute)

	usd := testutil.NewTestUUID("batch-usd")
	cop := testutil.NewTestUUID("batch-cop")
	inactive := testutil.NewTestUUID("batch-inactive")
	rate := decimal.RequireFromString("4000")
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tdb.InsertDeal(usd, "USD", "300", nil, start)
	tdb.InsertDeal(cop, "COP", "1200000", &rate, start)
	tdb.InsertDeal(inactive, "USD", "100", nil, start)
	require.NoError(t, tdb.DB.Exec("UPDATE project_deals SET active = false WHERE project_id = ?", inactive).Error)

	deals := persistence.NewGormDealSource(tdb.DB)
	job := billingapp.NewRecurringBatchJob(ledger, deals, 2, zap.NewNop())
	upTo := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	result, err := job.Run(ctx, upTo)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Projects)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int(tdb.CountRecurring(usd)+tdb.CountRecurring(cop)), result.Created)
	assert.Zero(t, tdb.CountRecurring(inactive))

	terms, err := deals.FindDeal(ctx, cop)
	require.NoError(t, err)
	require.NotNil(t, terms.ExchangeRate)
	assert.True(t, rate.Equal(*terms.ExchangeRate))

	_, err = deals.FindDeal(ctx, uuid.New())
	assert.ErrorIs(t, err, persistence.ErrDealNotFound)

	rerun, err := job.Run(ctx, upTo)
	require.NoError(t, err)
	assert.Zero(t, rerun.Created)
}
