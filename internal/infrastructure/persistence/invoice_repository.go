package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormInvoiceRepository) WithTx(tx *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: tx}
}

// FindInvoices returns every invoice of a project ordered by period month,
// undated invoices last, then by creation time.
func (r *GormInvoiceRepository) FindInvoices(ctx context.Context, projectID uuid.UUID) ([]billing.Invoice, error) {
	return r.FindByFilter(ctx, billing.InvoiceFilter{ProjectID: projectID})
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByFilter lists invoices matching filter
func (r *GormInvoiceRepository) FindByFilter(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	if filter.ProjectID != uuid.Nil {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.InvoiceType != "" {
		query = query.Where("invoice_type = ?", filter.InvoiceType)
	}

	var rows []models.InvoiceModel
	if err := query.
		Order("period_month IS NULL, period_month ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	invoices := make([]billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// RecurringPeriods returns the period months already billed as RECURRING
func (r *GormInvoiceRepository) RecurringPeriods(ctx context.Context, projectID uuid.UUID) (billing.PeriodSet, error) {
	var periods []time.Time
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("project_id = ? AND invoice_type = ? AND period_month IS NOT NULL", projectID, billing.InvoiceTypeRecurring).
		Pluck("period_month", &periods).Error; err != nil {
		return nil, err
	}
	return billing.NewPeriodSet(periods...), nil
}

// InsertInvoice inserts a new invoice row
func (r *GormInvoiceRepository) InsertInvoice(ctx context.Context, inv *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return billing.ErrDuplicatePeriod
		}
		return err
	}
	inv.ClearDirty()
	return nil
}

// UpdateInvoiceRow writes only the invoice's dirty columns, conditioned on
// the stored status still being expected. Columns not touched by the caller
// are left as stored, so concurrent edits of disjoint fields both land.
func (r *GormInvoiceRepository) UpdateInvoiceRow(ctx context.Context, inv *billing.Invoice, expected billing.InvoiceStatus) error {
	dirty := inv.DirtyFields()
	if len(dirty) == 0 {
		return nil
	}

	cols := models.InvoiceColumns(inv, dirty)
	cols["updated_at"] = inv.UpdatedAt
	cols["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND status = ?", inv.ID, expected).
		Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, inv.ID, inv.PendingAction())
	}
	inv.ClearDirty()
	return nil
}

// DeleteInvoiceRow deletes an invoice whose stored status is still expected.
// PAID rows are never deleted.
func (r *GormInvoiceRepository) DeleteInvoiceRow(ctx context.Context, id uuid.UUID, expected billing.InvoiceStatus) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND status <> ?", id, expected, billing.InvoiceStatusPaid).
		Delete(&models.InvoiceModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == billing.InvoiceStatusPaid {
		return billing.ErrCannotDeletePaid
	}
	return billing.NewTransitionError(current.Status, "delete")
}

// WithinProjectLock runs fn in one transaction holding a transaction-scoped
// advisory lock keyed by the project. SQLite serializes writers on its own
// and takes no explicit lock.
func (r *GormInvoiceRepository) WithinProjectLock(ctx context.Context, projectID uuid.UUID, fn func(repo billing.InvoiceRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", projectID.String()).Error; err != nil {
				return err
			}
		}
		return fn(r.WithTx(tx))
	})
}

// explainMiss turns a conditional write that matched no row into the error
// describing what the row looks like now.
func (r *GormInvoiceRepository) explainMiss(ctx context.Context, id uuid.UUID, attempted string) error {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return billing.NewTransitionError(current.Status, attempted)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
