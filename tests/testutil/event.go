package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/billing/internal/domain/shared"
)

// RecordingHandler is a shared.EventHandler that keeps every event it sees.
type RecordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
}

// NewRecordingHandler creates a handler for eventTypes; none means all.
func NewRecordingHandler(eventTypes ...string) *RecordingHandler {
	return &RecordingHandler{eventTypes: eventTypes}
}

// EventTypes returns the event types this handler subscribes to.
func (h *RecordingHandler) EventTypes() []string {
	return h.eventTypes
}

// Handle records ev.
func (h *RecordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev)
	return nil
}

// Types returns the types of the handled events in order.
func (h *RecordingHandler) Types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, len(h.handled))
	for i, ev := range h.handled {
		types[i] = ev.EventType()
	}
	return types
}

// Count returns how many events of eventType were handled.
func (h *RecordingHandler) Count(eventType string) int {
	n := 0
	for _, typ := range h.Types() {
		if typ == eventType {
			n++
		}
	}
	return n
}

// WaitForCount waits until at least n events of eventType were handled.
func (h *RecordingHandler) WaitForCount(t *testing.T, eventType string, n int, timeout time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.Count(eventType) >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
