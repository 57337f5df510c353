// Package billing implements the invoice ledger use cases: invoice
// lifecycle, idempotent recurring generation, summaries and reports.
package billing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/infrastructure/logger"
	"github.com/erp/billing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStorageUnavailable is returned when an upload URL is requested but no
// document store is configured.
var ErrStorageUnavailable = shared.NewDomainError("STORAGE_UNAVAILABLE", "document storage is not configured")

const spanService = "ledger"

// LedgerService exposes the ledger operations to the HTTP API, the CLI and
// the scheduler.
type LedgerService struct {
	repo           billing.InvoiceRepository
	calc           billing.Calculator
	planner        billing.RecurringPlanner
	publisher      shared.EventPublisher
	documents      DocumentStore
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	now            func() time.Time
	defaultDueDays int
}

// LedgerServiceOption configures LedgerService
type LedgerServiceOption func(*LedgerService)

// WithEventPublisher publishes domain events after each successful write
func WithEventPublisher(p shared.EventPublisher) LedgerServiceOption {
	return func(s *LedgerService) {
		s.publisher = p
	}
}

// WithDocumentStore enables documentRef/proofRef checks and upload URLs
func WithDocumentStore(d DocumentStore) LedgerServiceOption {
	return func(s *LedgerService) {
		s.documents = d
	}
}

// WithMetrics records ledger counters
func WithMetrics(m *telemetry.LedgerMetrics) LedgerServiceOption {
	return func(s *LedgerService) {
		s.metrics = m
	}
}

// WithLogger sets the base logger; request fields are added per call
func WithLogger(l *zap.Logger) LedgerServiceOption {
	return func(s *LedgerService) {
		s.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) LedgerServiceOption {
	return func(s *LedgerService) {
		s.now = now
	}
}

// WithDefaultDueDays sets due_date = issue date + days when a create call omits it
func WithDefaultDueDays(days int) LedgerServiceOption {
	return func(s *LedgerService) {
		s.defaultDueDays = days
	}
}

// WithConceptFormatter sets how generated recurring concepts are worded
func WithConceptFormatter(f billing.ConceptFormatter) LedgerServiceOption {
	return func(s *LedgerService) {
		s.planner = billing.NewRecurringPlanner(s.calc, f)
	}
}

// NewLedgerService creates a LedgerService
func NewLedgerService(repo billing.InvoiceRepository, calc billing.Calculator, opts ...LedgerServiceOption) *LedgerService {
	s := &LedgerService{
		repo:    repo,
		calc:    calc,
		planner: billing.NewRecurringPlanner(calc, billing.NewConceptFormatter(billing.DefaultConceptPrefix, "en")),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseCurrency is the reporting currency of every base-currency amount
func (s *LedgerService) BaseCurrency() string {
	return s.calc.Converter().Base().String()
}

// CreateInvoice creates a PENDING invoice. A RECURRING invoice for a period
// the project already has fails with billing.ErrDuplicatePeriod.
func (s *LedgerService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "create_invoice")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.AttrProjectID, req.ProjectID.String(),
		telemetry.AttrInvoiceType, req.InvoiceType.String(),
	)

	now := s.now().UTC()
	inv, err := billing.NewInvoice(s.calc, billing.NewInvoiceParams{
		ProjectID:    req.ProjectID,
		InvoiceType:  req.InvoiceType,
		Concept:      req.Concept,
		Subtotal:     req.Subtotal,
		HasTax:       req.HasTax,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		PeriodMonth:  req.PeriodMonth,
		DueDate:      s.dueDate(req.DueDate, req.PeriodMonth, now),
		Notes:        req.Notes,
	}, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.repo.InsertInvoice(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, inv.GetDomainEvents()...)
	inv.ClearDomainEvents()
	s.metrics.InvoiceCreated(ctx, inv.InvoiceType.String())
	telemetry.SetAttributes(span, telemetry.AttrInvoiceID, inv.ID.String())
	telemetry.SetOK(span)

	s.log(ctx).Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_type", inv.InvoiceType.String()),
		zap.String("total", inv.Total.String()),
		zap.String("currency", inv.Currency.String()),
	)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// dueDate applies the default payment term when none was supplied
func (s *LedgerService) dueDate(supplied, period *time.Time, now time.Time) *time.Time {
	if supplied != nil {
		d := dateOnly(*supplied)
		return &d
	}
	if s.defaultDueDays <= 0 {
		return nil
	}
	issued := dateOnly(now)
	if period != nil {
		issued = billing.FirstOfMonth(*period)
	}
	d := issued.AddDate(0, 0, s.defaultDueDays)
	return &d
}

// GetInvoice returns one invoice
func (s *LedgerService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// ListInvoices returns a project's invoices ordered by period then creation time
func (s *LedgerService) ListInvoices(ctx context.Context, projectID uuid.UUID, filter ListInvoicesFilter) ([]InvoiceResponse, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.InvoiceType != "" && !filter.InvoiceType.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown invoice type %q", filter.InvoiceType))
	}

	invoices, err := s.repo.FindByFilter(ctx, billing.InvoiceFilter{
		ProjectID:   projectID,
		Status:      filter.Status,
		InvoiceType: filter.InvoiceType,
	})
	if err != nil {
		return nil, err
	}
	return ToInvoiceResponses(invoices), nil
}

// UpdateInvoice applies edit. Monetary edits on a PAID invoice fail with
// INVALID_TRANSITION; derived amounts are recomputed when any input changes.
func (s *LedgerService) UpdateInvoice(ctx context.Context, id uuid.UUID, edit billing.InvoiceEdit) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "update_invoice")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrInvoiceID, id.String())

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	expected := inv.Status

	if err := inv.ApplyEdit(s.calc, edit, s.now().UTC()); err != nil {
		s.rejected(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(inv.DirtyFields()) == 0 {
		resp := ToInvoiceResponse(inv)
		return &resp, nil
	}

	if err := s.save(ctx, inv, expected); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)

	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// MarkInvoiced moves a PENDING invoice to INVOICED
func (s *LedgerService) MarkInvoiced(ctx context.Context, id uuid.UUID, req MarkInvoicedRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "mark_invoiced")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrInvoiceID, id.String())

	if err := s.checkReference(ctx, req.DocumentRef, "document_ref"); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	expected := inv.Status

	if err := inv.MarkInvoiced(req.InvoiceNumber, req.DocumentRef, s.now().UTC()); err != nil {
		s.rejected(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.save(ctx, inv, expected); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)

	s.log(ctx).Info("Invoice marked invoiced",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// MarkPaid records payment on a PENDING or INVOICED invoice
func (s *LedgerService) MarkPaid(ctx context.Context, id uuid.UUID, req MarkPaidRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "mark_paid")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrInvoiceID, id.String())

	if err := s.checkReference(ctx, req.ProofRef, "proof_ref"); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	expected := inv.Status

	err = inv.MarkPaid(billing.Payment{
		PaidAt:          req.PaidAt,
		AmountReceived:  req.AmountReceived,
		RetentionAmount: req.RetentionAmount,
		ProofRef:        req.ProofRef,
	}, s.now().UTC())
	if err != nil {
		s.rejected(ctx, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.save(ctx, inv, expected); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.metrics.InvoicePaid(ctx)
	telemetry.SetOK(span)

	s.log(ctx).Info("Invoice paid",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("amount_received", req.AmountReceived.String()),
		zap.String("currency", inv.Currency.String()),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// DeleteInvoice removes an invoice that is not PAID
func (s *LedgerService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "delete_invoice")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrInvoiceID, id.String())

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := inv.MarkDeleted(); err != nil {
		s.rejected(ctx, err)
		telemetry.RecordError(span, err)
		return err
	}
	if err := s.repo.DeleteInvoiceRow(ctx, id, inv.Status); err != nil {
		s.rejected(ctx, err)
		telemetry.RecordError(span, err)
		return err
	}

	s.publish(ctx, inv.GetDomainEvents()...)
	inv.ClearDomainEvents()
	telemetry.SetOK(span)
	s.log(ctx).Info("Invoice deleted",
		zap.String("invoice_id", id.String()),
		zap.String("status", inv.Status.String()),
	)
	return nil
}

// GenerateRecurringInvoices creates the missing RECURRING invoices of a
// project from the deal's recurrence anchor through upToMonth and returns how
// many it created. Repeating a call creates nothing new. The read of existing
// periods and the inserts run in one transaction under a per-project lock.
func (s *LedgerService) GenerateRecurringInvoices(ctx context.Context, projectID uuid.UUID, deal billing.DealTerms, upToMonth time.Time) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "generate_recurring")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.AttrProjectID, projectID.String(),
		"billing.up_to_month", billing.MonthKey(upToMonth),
	)

	if projectID == uuid.Nil {
		err := shared.NewDomainError(shared.ErrInvalidInput.Code, "project ID cannot be empty")
		telemetry.RecordError(span, err)
		return 0, err
	}
	if upToMonth.IsZero() {
		err := shared.NewDomainError(shared.ErrInvalidInput.Code, "up to month is required")
		telemetry.RecordError(span, err)
		return 0, err
	}
	upTo := billing.FirstOfMonth(upToMonth)

	start := time.Now()
	var created []*billing.Invoice
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels("generate_recurring"), func(c context.Context) {
		opErr = s.repo.WithinProjectLock(c, projectID, func(tx billing.InvoiceRepository) error {
			existing, err := tx.RecurringPeriods(c, projectID)
			if err != nil {
				return err
			}
			planned, err := s.planner.Plan(projectID, deal, existing, upTo, s.now().UTC())
			if err != nil {
				return err
			}
			for _, inv := range planned {
				if err := tx.InsertInvoice(c, inv); err != nil {
					return fmt.Errorf("insert recurring invoice for %s: %w", billing.MonthKey(*inv.PeriodMonth), err)
				}
			}
			created = planned
			return nil
		})
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.log(ctx).Warn("Recurring generation failed",
			zap.String("project_id", projectID.String()),
			zap.Error(opErr),
		)
		return 0, opErr
	}

	s.metrics.RecurringGenerated(ctx, len(created), time.Since(start))
	periods := billing.NewPeriodSet()
	for _, inv := range created {
		s.publish(ctx, inv.GetDomainEvents()...)
		inv.ClearDomainEvents()
		s.metrics.InvoiceCreated(ctx, inv.InvoiceType.String())
		periods.Add(*inv.PeriodMonth)
	}
	if len(created) > 0 {
		s.publish(ctx, billing.NewRecurringInvoicesGeneratedEvent(projectID, periods.Sorted(), upTo))
	}

	telemetry.SetAttributes(span, telemetry.AttrCreated, len(created))
	telemetry.SetOK(span)
	s.log(ctx).Info("Recurring invoices generated",
		zap.String("project_id", projectID.String()),
		zap.String("up_to_month", billing.MonthKey(upTo)),
		zap.Int("created", len(created)),
	)
	return len(created), nil
}

// GetSummary recomputes a project's billing summary from its invoices
func (s *LedgerService) GetSummary(ctx context.Context, projectID uuid.UUID) (*SummaryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "get_summary")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrProjectID, projectID.String())

	invoices, err := s.repo.FindInvoices(ctx, projectID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToSummaryResponse(billing.Summarize(projectID, invoices), s.calc.Converter().Base())
	return &resp, nil
}

// Report flattens a project's invoices and summary totals into report rows
func (s *LedgerService) Report(ctx context.Context, projectID uuid.UUID) ([]billing.ReportRow, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "report")
	defer span.End()

	invoices, err := s.repo.FindInvoices(ctx, projectID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	summary := billing.Summarize(projectID, invoices)
	return billing.ReportRows(invoices, summary, s.calc.Converter().Base(), dateOnly(s.now())), nil
}

// RequestDocumentUpload returns a presigned URL under which the caller
// uploads an invoice document or payment proof, and the key to reference it by.
func (s *LedgerService) RequestDocumentUpload(ctx context.Context, id uuid.UUID, req DocumentUploadRequest) (*DocumentUploadResponse, error) {
	if s.documents == nil {
		return nil, ErrStorageUnavailable
	}
	if !req.Kind.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown document kind %q", req.Kind))
	}

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("projects/%s/invoices/%s/%s/%s%s",
		inv.ProjectID, inv.ID, req.Kind, uuid.New(), fileExt(req.FileName))
	url, expiresAt, err := s.documents.PresignUpload(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &DocumentUploadResponse{Key: key, UploadURL: url, ExpiresAt: expiresAt}, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func fileExt(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// checkReference fails with INVALID_INPUT when a store is configured and ref
// is not in it.
func (s *LedgerService) checkReference(ctx context.Context, ref, field string) error {
	if ref == "" || s.documents == nil {
		return nil
	}
	ok, err := s.documents.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	if !ok {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("%s %q does not exist", field, ref))
	}
	return nil
}

// save writes the invoice's changed columns guarded by its loaded status,
// then publishes its events.
func (s *LedgerService) save(ctx context.Context, inv *billing.Invoice, expected billing.InvoiceStatus) error {
	if err := s.repo.UpdateInvoiceRow(ctx, inv, expected); err != nil {
		s.rejected(ctx, err)
		return err
	}
	s.publish(ctx, inv.GetDomainEvents()...)
	inv.ClearDomainEvents()
	return nil
}

func (s *LedgerService) rejected(ctx context.Context, err error) {
	var te *billing.TransitionError
	switch {
	case errors.As(err, &te):
		s.metrics.TransitionRejected(ctx, te.Attempted)
		s.log(ctx).Warn("Invoice transition rejected",
			zap.String("current", te.Current.String()),
			zap.String("attempted", te.Attempted),
		)
	case errors.Is(err, billing.ErrCannotDeletePaid):
		s.metrics.TransitionRejected(ctx, "delete")
		s.log(ctx).Warn("Deletion of paid invoice rejected")
	}
}

// publish hands events to the bus. The write has already committed, so a
// publish failure is logged rather than returned.
func (s *LedgerService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.log(ctx).Error("Failed to publish ledger events", zap.Int("count", len(events)), zap.Error(err))
	}
}

func (s *LedgerService) log(ctx context.Context) *zap.Logger {
	return logger.For(ctx, s.logger)
}
