package billing

// InvoiceType classifies what an invoice bills for
type InvoiceType string

const (
	InvoiceTypeAdvance        InvoiceType = "ADVANCE"        // Up-front payment before work starts
	InvoiceTypeImplementation InvoiceType = "IMPLEMENTATION" // One-off implementation fee
	InvoiceTypeRecurring      InvoiceType = "RECURRING"      // One calendar month of the recurring fee
)

// AllInvoiceTypes lists the types in display order
var AllInvoiceTypes = []InvoiceType{InvoiceTypeAdvance, InvoiceTypeImplementation, InvoiceTypeRecurring}

// IsValid checks if the type is a valid InvoiceType
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeAdvance, InvoiceTypeImplementation, InvoiceTypeRecurring:
		return true
	}
	return false
}

// String returns the string representation of InvoiceType
func (t InvoiceType) String() string {
	return string(t)
}

// RequiresPeriod reports whether invoices of this type must carry a period month
func (t InvoiceType) RequiresPeriod() bool {
	return t == InvoiceTypeRecurring
}

// InvoiceStatus represents where an invoice is in its payment lifecycle
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"  // Created, no document issued yet
	InvoiceStatusInvoiced InvoiceStatus = "INVOICED" // Invoice document/number attached
	InvoiceStatusPaid     InvoiceStatus = "PAID"     // Payment recorded; financially closed
)

// AllInvoiceStatuses lists the statuses in lifecycle order
var AllInvoiceStatuses = []InvoiceStatus{InvoiceStatusPending, InvoiceStatusInvoiced, InvoiceStatusPaid}

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusInvoiced, InvoiceStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// Rank orders statuses along the lifecycle; it never decreases for an invoice.
func (s InvoiceStatus) Rank() int {
	switch s {
	case InvoiceStatusPending:
		return 0
	case InvoiceStatusInvoiced:
		return 1
	case InvoiceStatusPaid:
		return 2
	}
	return -1
}

// IsTerminal returns true if no further transition is possible
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid
}

// CanMarkInvoiced returns true if a document can be attached in this status
func (s InvoiceStatus) CanMarkInvoiced() bool {
	return s == InvoiceStatusPending
}

// CanMarkPaid returns true if payment can be recorded in this status
func (s InvoiceStatus) CanMarkPaid() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusInvoiced
}

// IsBilled reports whether the invoice counts as billed (issued or paid)
func (s InvoiceStatus) IsBilled() bool {
	return s != InvoiceStatusPending
}
