package billing

import (
	"context"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/google/uuid"
)

// DocumentStore holds invoice documents and payment proofs. The ledger only
// stores references; it checks they exist and hands out upload URLs.
type DocumentStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (url string, expiresAt time.Time, err error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ProjectDeal pairs a project with the deal terms that drive its recurring fee
type ProjectDeal struct {
	ProjectID uuid.UUID
	Terms     billing.DealTerms
}

// DealSource lists the deals whose projects are billed recurrently.
// Deals belong to the CRM; the ledger only reads them.
type DealSource interface {
	ActiveDeals(ctx context.Context) ([]ProjectDeal, error)
}

// RecurringGenerator is the part of the ledger the batch job drives
type RecurringGenerator interface {
	GenerateRecurringInvoices(ctx context.Context, projectID uuid.UUID, deal billing.DealTerms, upToMonth time.Time) (int, error)
}
