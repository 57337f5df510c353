package persistence

import (
	"fmt"

	"github.com/erp/billing/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// EnsureSQLiteSchema creates the ledger tables on a SQLite database. PostgreSQL
// schemas come from the SQL migrations instead.
func EnsureSQLiteSchema(db *gorm.DB) error {
	if name := db.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("EnsureSQLiteSchema called on %s", name)
	}
	if err := db.AutoMigrate(&models.InvoiceModel{}, &models.ProjectDealModel{}); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	// Partial index: GORM tags cannot carry the WHERE clause.
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_recurring_period
		 ON invoices(project_id, period_month) WHERE invoice_type = 'RECURRING'`,
	).Error
}
