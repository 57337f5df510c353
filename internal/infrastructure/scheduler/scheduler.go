// Package scheduler runs recurring invoice generation once a day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// BatchRunner runs generation for every active project
type BatchRunner interface {
	Run(ctx context.Context, upToMonth time.Time) (billingapp.BatchResult, error)
}

// Trigger says what started a run
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Config holds the scheduler settings
type Config struct {
	RunHour         int           // local hour from which the daily run may start
	LookaheadMonths int           // months past the current one to generate
	CheckInterval   time.Duration // how often the clock is checked
	JobTimeout      time.Duration
	LockTTL         time.Duration // minimum lease on the per-day batch key
}

// DefaultConfig returns the scheduler defaults
func DefaultConfig() Config {
	return Config{
		RunHour:       2,
		CheckInterval: time.Minute,
		JobTimeout:    30 * time.Minute,
		LockTTL:       10 * time.Minute,
	}
}

// RunRecord describes the last completed run
type RunRecord struct {
	Trigger    Trigger                `json:"trigger"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Result     billingapp.BatchResult `json:"result"`
	Error      string                 `json:"error,omitempty"`
}

// RecurringInvoiceScheduler calls the batch job once per day at or after
// RunHour. Replicas share the day through a Locker key, so only the first
// one to reach the hour runs the batch. The lease lasts until the next local
// midnight (never less than LockTTL) and is released after a failed run so
// the day can be retried. A replica that dies mid-run holds the day; the
// next day's run catches up the missing periods.
type RecurringInvoiceScheduler struct {
	config Config
	runner BatchRunner
	locker cache.Locker
	logger *zap.Logger
	now    func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
	last        *RunRecord

	inFlight atomic.Bool
}

// Option configures RecurringInvoiceScheduler
type Option func(*RecurringInvoiceScheduler)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *RecurringInvoiceScheduler) {
		s.now = now
	}
}

// New creates a scheduler. Zero config values take DefaultConfig values.
func New(config Config, runner BatchRunner, locker cache.Locker, logger *zap.Logger, opts ...Option) *RecurringInvoiceScheduler {
	def := DefaultConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = def.CheckInterval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RecurringInvoiceScheduler{
		config: config,
		runner: runner,
		locker: locker,
		logger: logger.With(zap.String("component", "recurring_scheduler")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins checking the clock. Calling Start twice is a no-op.
func (s *RecurringInvoiceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Recurring invoice scheduler started",
		zap.Int("run_hour", s.config.RunHour),
		zap.Int("lookahead_months", s.config.LookaheadMonths),
		zap.Duration("check_interval", s.config.CheckInterval),
	)
	return nil
}

// Stop cancels the loop and any running batch, then waits for both until
// ctx expires.
func (s *RecurringInvoiceScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Recurring invoice scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Recurring invoice scheduler stop timed out")
		return ctx.Err()
	}
}

// UpToMonth is the last month a run at now generates
func (s *RecurringInvoiceScheduler) UpToMonth(now time.Time) time.Time {
	return billing.AddMonths(billing.FirstOfMonth(now), s.config.LookaheadMonths)
}

// TriggerNow runs the batch immediately, outside the daily lock. It fails
// with ErrRunInProgress when a run is already executing in this process.
func (s *RecurringInvoiceScheduler) TriggerNow(ctx context.Context) (billingapp.BatchResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return billingapp.BatchResult{}, ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	return s.execute(ctx, TriggerManual, s.now())
}

// LastRun returns the last finished run, or nil
func (s *RecurringInvoiceScheduler) LastRun() *RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	rec := *s.last
	return &rec
}

func (s *RecurringInvoiceScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.checkAndRun(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun starts the day's run once the clock passes RunHour
func (s *RecurringInvoiceScheduler) checkAndRun(ctx context.Context) {
	now := s.now()
	today := now.Format(time.DateOnly)

	s.mu.Lock()
	done := s.lastRunDate == today
	s.mu.Unlock()
	if done || now.Hour() < s.config.RunHour {
		return
	}

	if err := s.runScheduled(ctx, now, today); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error("Scheduled recurring generation failed", zap.String("date", today), zap.Error(err))
	}
}

func (s *RecurringInvoiceScheduler) runScheduled(ctx context.Context, now time.Time, today string) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	key := "recurring-batch:" + today
	lease, ok, err := s.locker.TryAcquire(ctx, key, s.leaseTTL(now))
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		s.markDone(today)
		s.logger.Info("Recurring generation already claimed for today", zap.String("key", key))
		return nil
	}

	_, runErr := s.execute(ctx, TriggerSchedule, now)
	if runErr != nil {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, cache.ErrNotHeld) {
			s.logger.Warn("Failed to release batch lock", zap.String("key", key), zap.Error(err))
		}
		return runErr
	}
	s.markDone(today)
	return nil
}

// leaseTTL covers the rest of now's day so a finished run keeps the key
// until the date changes.
func (s *RecurringInvoiceScheduler) leaseTTL(now time.Time) time.Duration {
	y, m, d := now.Date()
	ttl := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
	return max(ttl, s.config.LockTTL)
}

func (s *RecurringInvoiceScheduler) markDone(today string) {
	s.mu.Lock()
	s.lastRunDate = today
	s.mu.Unlock()
}

func (s *RecurringInvoiceScheduler) execute(ctx context.Context, trigger Trigger, now time.Time) (billingapp.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	upTo := s.UpToMonth(now)
	rec := RunRecord{Trigger: trigger, StartedAt: s.now()}
	s.logger.Info("Recurring generation starting",
		zap.String("trigger", string(trigger)),
		zap.String("up_to_month", billing.MonthKey(upTo)),
	)

	result, err := s.runner.Run(ctx, upTo)
	rec.FinishedAt = s.now()
	rec.Result = result
	if err != nil {
		rec.Error = err.Error()
	}

	s.mu.Lock()
	s.last = &rec
	s.mu.Unlock()
	return result, err
}
