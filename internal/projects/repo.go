package projects

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

// Repository persists the upstream project mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProject(ctx context.Context, project *models.Project) error
	FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	FindProjectForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Project, error)
	MarkInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	MarkAttributed(ctx context.Context, id uuid.UUID, attributedAt time.Time) error
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed project repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) CreateProject(ctx context.Context, project *models.Project) error {
	return r.DB(ctx).WithContext(ctx).Create(project).Error
}

func (r *gormRepository) FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.DB(ctx).WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) FindProjectForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) ListProjects(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Project, error) {
	query := r.DB(ctx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Project
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) MarkInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	result := r.DB(ctx).WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND invoice_paid_at IS NULL", id).
		Update("invoice_paid_at", paidAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) MarkAttributed(ctx context.Context, id uuid.UUID, attributedAt time.Time) error {
	result := r.DB(ctx).WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND attributed_at IS NULL", id).
		Update("attributed_at", attributedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
