package ranks

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// Repository persists rank progression records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProgression(ctx context.Context, progression *models.RankProgression) error
	FindProgression(ctx context.Context, id uuid.UUID) (*models.RankProgression, error)
	FindProgressionForUpdate(ctx context.Context, id uuid.UUID) (*models.RankProgression, error)
	FindPendingByMembership(ctx context.Context, membershipID uuid.UUID) (*models.RankProgression, error)
	ListByMembership(ctx context.Context, membershipID uuid.UUID) ([]models.RankProgression, error)
	SaveProgression(ctx context.Context, progression *models.RankProgression) error
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed rank progression repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) CreateProgression(ctx context.Context, progression *models.RankProgression) error {
	return r.DB(ctx).WithContext(ctx).Create(progression).Error
}

func (r *gormRepository) FindProgression(ctx context.Context, id uuid.UUID) (*models.RankProgression, error) {
	var progression models.RankProgression
	if err := r.DB(ctx).WithContext(ctx).First(&progression, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &progression, nil
}

func (r *gormRepository) FindProgressionForUpdate(ctx context.Context, id uuid.UUID) (*models.RankProgression, error) {
	var progression models.RankProgression
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&progression, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &progression, nil
}

func (r *gormRepository) FindPendingByMembership(ctx context.Context, membershipID uuid.UUID) (*models.RankProgression, error) {
	var progression models.RankProgression
	err := r.DB(ctx).WithContext(ctx).
		Where("membership_id = ? AND status = ?", membershipID, enums.ProposalStatusPending).
		First(&progression).Error
	if err != nil {
		return nil, err
	}
	return &progression, nil
}

func (r *gormRepository) ListByMembership(ctx context.Context, membershipID uuid.UUID) ([]models.RankProgression, error) {
	var rows []models.RankProgression
	err := r.DB(ctx).WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) SaveProgression(ctx context.Context, progression *models.RankProgression) error {
	return r.DB(ctx).WithContext(ctx).Save(progression).Error
}
