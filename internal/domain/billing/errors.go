package billing

import (
	"fmt"

	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/domain/shared/valueobject"
)

// Error codes surfaced by the ledger
const (
	CodeDuplicatePeriod   = "DUPLICATE_PERIOD"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeCannotDeletePaid  = "CANNOT_DELETE_PAID"
)

var (
	// ErrInvalidExchangeRate is re-exported so callers of this package need not import valueobject
	ErrInvalidExchangeRate = valueobject.ErrInvalidExchangeRate
	ErrNotFound            = shared.NewDomainError("NOT_FOUND", "invoice not found")
	ErrDuplicatePeriod     = shared.NewDomainError(CodeDuplicatePeriod, "a recurring invoice already exists for this period")
	ErrInvalidTransition   = shared.NewDomainError(CodeInvalidTransition, "invoice status does not allow this operation")
	ErrCannotDeletePaid    = shared.NewDomainError(CodeCannotDeletePaid, "paid invoices cannot be deleted")
)

// TransitionError reports a lifecycle operation rejected because of the
// invoice's current status. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Current   InvoiceStatus
	Attempted string
}

// NewTransitionError creates a TransitionError
func NewTransitionError(current InvoiceStatus, attempted string) *TransitionError {
	return &TransitionError{Current: current, Attempted: attempted}
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s: invoice is %s", e.Attempted, e.Current)
}

// Unwrap exposes the INVALID_TRANSITION domain error
func (e *TransitionError) Unwrap() error {
	return shared.NewDomainError(CodeInvalidTransition, e.Error())
}

func invalidInput(format string, args ...any) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf(format, args...))
}
