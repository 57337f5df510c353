package event

import (
	"testing"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("specific handlers come before wildcards", func(t *testing.T) {
		r := NewHandlerRegistry()
		specific := newRecordingHandler()
		wildcard := newRecordingHandler()
		r.Register(wildcard)
		r.Register(specific, billing.EventTypeInvoicePaid, billing.EventTypeInvoiceInvoiced)

		handlers := r.Handlers(billing.EventTypeInvoicePaid)
		if assert.Len(t, handlers, 2) {
			assert.Same(t, specific, handlers[0])
			assert.Same(t, wildcard, handlers[1])
		}
		assert.Len(t, r.Handlers(billing.EventTypeInvoiceDeleted), 1)
		assert.Equal(t, 2, r.Len())
	})

	t.Run("unregister removes every registration", func(t *testing.T) {
		r := NewHandlerRegistry()
		h := newRecordingHandler()
		other := newRecordingHandler()
		r.Register(h, billing.EventTypeInvoicePaid, billing.EventTypeInvoiceCreated)
		r.Register(h)
		r.Register(other, billing.EventTypeInvoicePaid)

		r.Unregister(h)
		assert.Equal(t, 1, r.Len())
		assert.Empty(t, r.Handlers(billing.EventTypeInvoiceCreated))
		assert.Len(t, r.Handlers(billing.EventTypeInvoicePaid), 1)
	})

	t.Run("empty registry", func(t *testing.T) {
		r := NewHandlerRegistry()
		assert.Empty(t, r.Handlers(billing.EventTypeInvoicePaid))
		assert.Equal(t, 0, r.Len())
	})
}
