package attribution

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
)

// Repository persists balanced attribution rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateAttributions(ctx context.Context, rows []models.RevenueAttribution) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.RevenueAttribution, error)
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed attribution repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) CreateAttributions(ctx context.Context, rows []models.RevenueAttribution) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).WithContext(ctx).Create(&rows).Error
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.RevenueAttribution, error) {
	var rows []models.RevenueAttribution
	err := r.DB(ctx).WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
