package event

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationKind identifies a notification template
type NotificationKind string

const (
	NotificationPaymentReceived    NotificationKind = "payment_received"
	NotificationRecurringGenerated NotificationKind = "recurring_generated"
)

// Notification is what the ledger asks the dispatcher to deliver
type Notification struct {
	Kind      NotificationKind
	ProjectID uuid.UUID
	InvoiceID uuid.UUID
	Subject   string
	Fields    map[string]string
}

// NotificationDispatcher delivers notifications (e-mail, chat) on behalf of
// the ledger. Delivery lives outside this service.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogNotificationDispatcher writes notifications to the log. It is the
// dispatcher used when no delivery service is wired.
type LogNotificationDispatcher struct {
	logger *zap.Logger
}

// NewLogNotificationDispatcher creates a LogNotificationDispatcher
func NewLogNotificationDispatcher(logger *zap.Logger) *LogNotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationDispatcher{logger: logger}
}

// Dispatch logs n
func (d *LogNotificationDispatcher) Dispatch(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("project_id", n.ProjectID.String()),
		zap.String("subject", n.Subject),
	}
	if n.InvoiceID != uuid.Nil {
		fields = append(fields, zap.String("invoice_id", n.InvoiceID.String()))
	}
	for k, v := range n.Fields {
		fields = append(fields, zap.String(k, v))
	}
	d.logger.Info("Notification", fields...)
	return nil
}

// PaymentNotificationHandler forwards InvoicePaid events to the dispatcher
type PaymentNotificationHandler struct {
	dispatcher NotificationDispatcher
}

var _ shared.EventHandler = (*PaymentNotificationHandler)(nil)

// NewPaymentNotificationHandler creates a PaymentNotificationHandler
func NewPaymentNotificationHandler(dispatcher NotificationDispatcher) *PaymentNotificationHandler {
	return &PaymentNotificationHandler{dispatcher: dispatcher}
}

// EventTypes returns the handled event types
func (h *PaymentNotificationHandler) EventTypes() []string {
	return []string{billing.EventTypeInvoicePaid}
}

// Handle builds a payment_received notification
func (h *PaymentNotificationHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	paid, ok := ev.(*billing.InvoicePaidEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", ev, ev.EventType())
	}

	fields := map[string]string{
		"concept":         paid.Concept,
		"currency":        paid.Currency.String(),
		"amount_received": paid.AmountReceived.StringFixed(2),
		"paid_at":         paid.PaidAt.Format("2006-01-02"),
	}
	if paid.InvoiceNumber != "" {
		fields["invoice_number"] = paid.InvoiceNumber
	}
	if paid.RetentionAmount != nil {
		fields["retention_amount"] = paid.RetentionAmount.StringFixed(2)
	}

	subject := "Payment received"
	if paid.InvoiceNumber != "" {
		subject += " for invoice " + paid.InvoiceNumber
	}
	return h.dispatcher.Dispatch(ctx, Notification{
		Kind:      NotificationPaymentReceived,
		ProjectID: paid.ProjectID,
		InvoiceID: paid.AggregateID(),
		Subject:   subject,
		Fields:    fields,
	})
}

// GenerationNotificationHandler tells the account team which recurring
// invoices are ready to be issued
type GenerationNotificationHandler struct {
	dispatcher NotificationDispatcher
}

var _ shared.EventHandler = (*GenerationNotificationHandler)(nil)

// NewGenerationNotificationHandler creates a GenerationNotificationHandler
func NewGenerationNotificationHandler(dispatcher NotificationDispatcher) *GenerationNotificationHandler {
	return &GenerationNotificationHandler{dispatcher: dispatcher}
}

// EventTypes returns the handled event types
func (h *GenerationNotificationHandler) EventTypes() []string {
	return []string{billing.EventTypeRecurringInvoicesGenerated}
}

// Handle builds a recurring_generated notification
func (h *GenerationNotificationHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	gen, ok := ev.(*billing.RecurringInvoicesGeneratedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", ev, ev.EventType())
	}
	if len(gen.Periods) == 0 {
		return nil
	}

	months := make([]string, len(gen.Periods))
	for i, p := range gen.Periods {
		months[i] = billing.MonthKey(p)
	}
	return h.dispatcher.Dispatch(ctx, Notification{
		Kind:      NotificationRecurringGenerated,
		ProjectID: gen.ProjectID,
		Subject:   fmt.Sprintf("%d recurring invoice(s) ready to issue", len(months)),
		Fields: map[string]string{
			"periods":     strings.Join(months, ","),
			"up_to_month": billing.MonthKey(gen.UpToMonth),
		},
	})
}
