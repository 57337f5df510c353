package persistence

import (
	"context"
	"errors"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared"
	"github.com/erp/billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDealNotFound is returned when a project has no active deal
var ErrDealNotFound = shared.NewDomainError("DEAL_NOT_FOUND", "project has no active deal")

// GormDealSource reads deal terms from the project_deals replica table
type GormDealSource struct {
	db *gorm.DB
}

var _ billingapp.DealSource = (*GormDealSource)(nil)

// NewGormDealSource creates a new GormDealSource
func NewGormDealSource(db *gorm.DB) *GormDealSource {
	return &GormDealSource{db: db}
}

// ActiveDeals returns every active deal ordered by project
func (s *GormDealSource) ActiveDeals(ctx context.Context) ([]billingapp.ProjectDeal, error) {
	var rows []models.ProjectDealModel
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("project_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	deals := make([]billingapp.ProjectDeal, len(rows))
	for i := range rows {
		deals[i] = billingapp.ProjectDeal{ProjectID: rows[i].ProjectID, Terms: rows[i].ToTerms()}
	}
	return deals, nil
}

// FindDeal returns the active deal of one project
func (s *GormDealSource) FindDeal(ctx context.Context, projectID uuid.UUID) (billing.DealTerms, error) {
	var row models.ProjectDealModel
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND active = ?", projectID, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.DealTerms{}, ErrDealNotFound
		}
		return billing.DealTerms{}, err
	}
	return row.ToTerms(), nil
}
