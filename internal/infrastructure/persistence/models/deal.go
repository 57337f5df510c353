package models

import (
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectDealModel maps the project_deals replica table
type ProjectDealModel struct {
	ProjectID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Currency           string           `gorm:"type:char(3);not null"`
	RecurringAmount    decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	ExchangeRate       *decimal.Decimal `gorm:"type:decimal(18,6)"`
	StartDate          time.Time        `gorm:"type:date;not null"`
	BillingStartDate   *time.Time       `gorm:"type:date"`
	FirstPeriodCovered bool             `gorm:"not null;default:false"`
	Active             bool             `gorm:"not null;default:true"`
	UpdatedAt          time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProjectDealModel) TableName() string {
	return "project_deals"
}

// ToTerms converts the row to the deal terms recurring generation reads
func (m *ProjectDealModel) ToTerms() billing.DealTerms {
	start := m.StartDate
	return billing.DealTerms{
		Currency:           valueobject.Currency(m.Currency),
		RecurringAmount:    m.RecurringAmount,
		ExchangeRate:       m.ExchangeRate,
		StartDate:          *utcDate(&start),
		BillingStartDate:   utcDate(m.BillingStartDate),
		FirstPeriodCovered: m.FirstPeriodCovered,
	}
}
