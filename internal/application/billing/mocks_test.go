package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory invoice repository
// =============================================================================

// memoryInvoiceRepository keeps rows in a map and enforces the same
// (project, period) uniqueness and status guard as the SQL store.
type memoryInvoiceRepository struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]billing.Invoice
	order    []uuid.UUID
	lockRuns int

	insertErr error
}

func newMemoryInvoiceRepository() *memoryInvoiceRepository {
	return &memoryInvoiceRepository{rows: make(map[uuid.UUID]billing.Invoice)}
}

func (r *memoryInvoiceRepository) FindInvoices(ctx context.Context, projectID uuid.UUID) ([]billing.Invoice, error) {
	return r.FindByFilter(ctx, billing.InvoiceFilter{ProjectID: projectID})
}

func (r *memoryInvoiceRepository) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return &row, nil
}

func (r *memoryInvoiceRepository) FindByFilter(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []billing.Invoice
	for _, id := range r.order {
		row, ok := r.rows[id]
		if !ok || row.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		if f.InvoiceType != "" && row.InvoiceType != f.InvoiceType {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].PeriodMonth, out[j].PeriodMonth
		switch {
		case pi == nil && pj == nil:
			return false
		case pi == nil:
			return false
		case pj == nil:
			return true
		}
		return pi.Before(*pj)
	})
	return out, nil
}

func (r *memoryInvoiceRepository) RecurringPeriods(_ context.Context, projectID uuid.UUID) (billing.PeriodSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := billing.NewPeriodSet()
	for _, row := range r.rows {
		if row.ProjectID == projectID && row.IsRecurring() && row.PeriodMonth != nil {
			set.Add(*row.PeriodMonth)
		}
	}
	return set, nil
}

func (r *memoryInvoiceRepository) InsertInvoice(_ context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if inv.IsRecurring() {
		for _, row := range r.rows {
			if row.ProjectID == inv.ProjectID && row.IsRecurring() &&
				billing.MonthKey(*row.PeriodMonth) == billing.MonthKey(*inv.PeriodMonth) {
				return billing.ErrDuplicatePeriod
			}
		}
	}
	inv.ClearDirty()
	stored := *inv
	stored.ClearDomainEvents()
	r.rows[inv.ID] = stored
	r.order = append(r.order, inv.ID)
	return nil
}

func (r *memoryInvoiceRepository) UpdateInvoiceRow(_ context.Context, inv *billing.Invoice, expected billing.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(inv.DirtyFields()) == 0 {
		return nil
	}
	row, ok := r.rows[inv.ID]
	if !ok {
		return billing.ErrNotFound
	}
	if row.Status != expected {
		return billing.NewTransitionError(row.Status, inv.PendingAction())
	}
	inv.ClearDirty()
	stored := *inv
	stored.ClearDomainEvents()
	r.rows[inv.ID] = stored
	return nil
}

func (r *memoryInvoiceRepository) DeleteInvoiceRow(_ context.Context, id uuid.UUID, expected billing.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return billing.ErrNotFound
	}
	if row.Status == billing.InvoiceStatusPaid {
		return billing.ErrCannotDeletePaid
	}
	if row.Status != expected {
		return billing.NewTransitionError(row.Status, "delete")
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryInvoiceRepository) WithinProjectLock(_ context.Context, _ uuid.UUID, fn func(billing.InvoiceRepository) error) error {
	r.mu.Lock()
	r.lockRuns++
	snapshot := make(map[uuid.UUID]billing.Invoice, len(r.rows))
	for k, v := range r.rows {
		snapshot[k] = v
	}
	order := append([]uuid.UUID(nil), r.order...)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.rows, r.order = snapshot, order
		r.mu.Unlock()
		return err
	}
	return nil
}

// setStatus overwrites the stored status, simulating a concurrent writer
func (r *memoryInvoiceRepository) setStatus(id uuid.UUID, status billing.InvoiceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	row.Status = status
	if status == billing.InvoiceStatusPaid {
		now := time.Now()
		row.PaidAt = &now
	}
	r.rows[id] = row
}

func (r *memoryInvoiceRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var _ billing.InvoiceRepository = (*memoryInvoiceRepository)(nil)

// =============================================================================
// Mock Event Publisher
// =============================================================================

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		p.types = append(p.types, e.EventType())
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) last() shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

// =============================================================================
// Mock Document Store
// =============================================================================

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockDocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// =============================================================================
// Mock Generator / Deal Source
// =============================================================================

type MockRecurringGenerator struct {
	mock.Mock
}

func (m *MockRecurringGenerator) GenerateRecurringInvoices(ctx context.Context, projectID uuid.UUID, deal billing.DealTerms, upToMonth time.Time) (int, error) {
	args := m.Called(ctx, projectID, deal, upToMonth)
	return args.Int(0), args.Error(1)
}

type MockDealSource struct {
	mock.Mock
}

func (m *MockDealSource) ActiveDeals(ctx context.Context) ([]ProjectDeal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProjectDeal), args.Error(1)
}
