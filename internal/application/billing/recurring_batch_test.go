package billing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecurringBatchJob_Run(t *testing.T) {
	ctx := context.Background()
	upTo := time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC)

	t.Run("a failing project does not stop the others", func(t *testing.T) {
		ok1, ok2, bad := uuid.New(), uuid.New(), uuid.New()
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return([]ProjectDeal{
			{ProjectID: ok1, Terms: copDeal()},
			{ProjectID: bad, Terms: copDeal()},
			{ProjectID: ok2, Terms: copDeal()},
		}, nil)

		gen := new(MockRecurringGenerator)
		wantMonth := month(2024, time.April)
		gen.On("GenerateRecurringInvoices", mock.Anything, ok1, mock.Anything, wantMonth).Return(3, nil)
		gen.On("GenerateRecurringInvoices", mock.Anything, ok2, mock.Anything, wantMonth).Return(1, nil)
		gen.On("GenerateRecurringInvoices", mock.Anything, bad, mock.Anything, wantMonth).
			Return(0, billing.ErrInvalidExchangeRate)

		result, err := NewRecurringBatchJob(gen, deals, 2, nil).Run(ctx, upTo)
		require.NoError(t, err)
		assert.Equal(t, "2024-04", result.UpToMonth)
		assert.Equal(t, 3, result.Projects)
		assert.Equal(t, 4, result.Created)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, bad, result.Failed[0].ProjectID)
		assert.Equal(t, billing.ErrInvalidExchangeRate.Error(), result.Failed[0].Error)
		gen.AssertExpectations(t)
	})

	t.Run("deal load failure", func(t *testing.T) {
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return(nil, errors.New("crm down"))
		gen := new(MockRecurringGenerator)

		result, err := NewRecurringBatchJob(gen, deals, 4, nil).Run(ctx, upTo)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crm down")
		assert.Equal(t, 0, result.Projects)
		gen.AssertNotCalled(t, "GenerateRecurringInvoices", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no deals", func(t *testing.T) {
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return([]ProjectDeal{}, nil)

		result, err := NewRecurringBatchJob(new(MockRecurringGenerator), deals, 0, nil).Run(ctx, upTo)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Created)
		assert.Empty(t, result.Failed)
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		var projects []ProjectDeal
		for i := 0; i < 12; i++ {
			projects = append(projects, ProjectDeal{ProjectID: uuid.New(), Terms: copDeal()})
		}
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return(projects, nil)

		gen := &countingGenerator{delay: 5 * time.Millisecond}
		result, err := NewRecurringBatchJob(gen, deals, 3, nil).Run(ctx, upTo)
		require.NoError(t, err)
		assert.Equal(t, 12, result.Created)
		assert.Equal(t, int32(12), gen.calls.Load())
		assert.LessOrEqual(t, gen.peak.Load(), int32(3))
	})

	t.Run("cancelled context marks remaining projects failed", func(t *testing.T) {
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return([]ProjectDeal{
			{ProjectID: uuid.New(), Terms: copDeal()},
			{ProjectID: uuid.New(), Terms: copDeal()},
		}, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		gen := &countingGenerator{}
		result, err := NewRecurringBatchJob(gen, deals, 1, nil).Run(cctx, upTo)
		require.NoError(t, err)
		assert.Len(t, result.Failed, 2)
		assert.Equal(t, int32(0), gen.calls.Load())
	})

	t.Run("drives the ledger end to end", func(t *testing.T) {
		repo := newMemoryInvoiceRepository()
		svc := newTestService(repo)
		deals := new(MockDealSource)
		deals.On("ActiveDeals", mock.Anything).Return([]ProjectDeal{
			{ProjectID: uuid.New(), Terms: copDeal()},
			{ProjectID: uuid.New(), Terms: copDeal()},
		}, nil)
		job := NewRecurringBatchJob(svc, deals, 2, nil)

		first, err := job.Run(ctx, upTo)
		require.NoError(t, err)
		assert.Equal(t, 6, first.Created)

		second, err := job.Run(ctx, upTo)
		require.NoError(t, err)
		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 6, repo.count())
	})
}

// countingGenerator tracks how many generations overlap
type countingGenerator struct {
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *countingGenerator) GenerateRecurringInvoices(_ context.Context, _ uuid.UUID, _ billing.DealTerms, _ time.Time) (int, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(g.delay)
	return 1, nil
}
