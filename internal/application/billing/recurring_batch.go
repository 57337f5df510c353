package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ProjectFailure records one project whose generation failed
type ProjectFailure struct {
	ProjectID uuid.UUID `json:"project_id"`
	Error     string    `json:"error"`
}

// BatchResult summarizes one RecurringBatchJob run
type BatchResult struct {
	UpToMonth string           `json:"up_to_month"`
	Projects  int              `json:"projects"`
	Created   int              `json:"created"`
	Failed    []ProjectFailure `json:"failed,omitempty"`
}

// RecurringBatchJob runs recurring generation for every active deal with
// bounded concurrency. A failing project is recorded and the rest continue;
// the next run retries it, since generation is idempotent.
type RecurringBatchJob struct {
	generator      RecurringGenerator
	deals          DealSource
	maxConcurrency int
	logger         *zap.Logger
}

// NewRecurringBatchJob creates a job. maxConcurrency below 1 means 1.
func NewRecurringBatchJob(generator RecurringGenerator, deals DealSource, maxConcurrency int, logger *zap.Logger) *RecurringBatchJob {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecurringBatchJob{
		generator:      generator,
		deals:          deals,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Run generates through upToMonth for all active deals. The returned error is
// only set when the deal list itself cannot be loaded.
func (j *RecurringBatchJob) Run(ctx context.Context, upToMonth time.Time) (BatchResult, error) {
	upTo := billing.FirstOfMonth(upToMonth)
	result := BatchResult{UpToMonth: billing.MonthKey(upTo)}

	deals, err := j.deals.ActiveDeals(ctx)
	if err != nil {
		return result, fmt.Errorf("load active deals: %w", err)
	}
	result.Projects = len(deals)

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(j.maxConcurrency)
	for _, deal := range deals {
		p.Go(func() {
			if ctx.Err() != nil {
				mu.Lock()
				result.Failed = append(result.Failed, ProjectFailure{ProjectID: deal.ProjectID, Error: ctx.Err().Error()})
				mu.Unlock()
				return
			}

			n, err := j.generator.GenerateRecurringInvoices(ctx, deal.ProjectID, deal.Terms, upTo)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, ProjectFailure{ProjectID: deal.ProjectID, Error: err.Error()})
				return
			}
			result.Created += n
		})
	}
	p.Wait()
	sort.Slice(result.Failed, func(a, b int) bool {
		return result.Failed[a].ProjectID.String() < result.Failed[b].ProjectID.String()
	})

	fields := []zap.Field{
		zap.String("up_to_month", result.UpToMonth),
		zap.Int("projects", result.Projects),
		zap.Int("created", result.Created),
		zap.Int("failed", len(result.Failed)),
	}
	if len(result.Failed) > 0 {
		j.logger.Warn("Recurring batch finished with failures", fields...)
	} else {
		j.logger.Info("Recurring batch finished", fields...)
	}
	return result, nil
}
