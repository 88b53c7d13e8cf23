package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
)

// Repository persists role assignment audit rows and pending proposals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateAssignment(ctx context.Context, assignment *models.RoleAssignment) error
	FindAssignment(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error)
	FindAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error)
	ListAssignmentsByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleAssignment, error)
	FindPendingProposalForSlot(ctx context.Context, slotID uuid.UUID) (*models.RoleAssignment, error)
	ListExpiredPendingProposals(ctx context.Context, asOf time.Time, limit int) ([]models.RoleAssignment, error)
	SaveAssignment(ctx context.Context, assignment *models.RoleAssignment) error
	ListCommittedByProject(ctx context.Context, projectID uuid.UUID) ([]models.RoleAssignment, error)
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed assignment repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) CreateAssignment(ctx context.Context, assignment *models.RoleAssignment) error {
	return r.DB(ctx).WithContext(ctx).Create(assignment).Error
}

func (r *gormRepository) FindAssignment(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error) {
	var assignment models.RoleAssignment
	if err := r.DB(ctx).WithContext(ctx).First(&assignment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *gormRepository) FindAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error) {
	var assignment models.RoleAssignment
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&assignment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *gormRepository) ListAssignmentsByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleAssignment, error) {
	var rows []models.RoleAssignment
	err := r.DB(ctx).WithContext(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) FindPendingProposalForSlot(ctx context.Context, slotID uuid.UUID) (*models.RoleAssignment, error) {
	var assignment models.RoleAssignment
	err := r.DB(ctx).WithContext(ctx).
		Where("slot_id = ? AND status = ?", slotID, enums.ProposalStatusPending).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *gormRepository) ListExpiredPendingProposals(ctx context.Context, asOf time.Time, limit int) ([]models.RoleAssignment, error) {
	var rows []models.RoleAssignment
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND expires_at < ?", enums.ProposalStatusPending, asOf).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) SaveAssignment(ctx context.Context, assignment *models.RoleAssignment) error {
	return r.DB(ctx).WithContext(ctx).Save(assignment).Error
}

// ListCommittedByProject resolves assignments through the opportunity join so
// attribution can find every member staffed on a project.
func (r *gormRepository) ListCommittedByProject(ctx context.Context, projectID uuid.UUID) ([]models.RoleAssignment, error) {
	var rows []models.RoleAssignment
	err := r.DB(ctx).WithContext(ctx).
		Joins("JOIN project_opportunities po ON po.id = role_assignments.opportunity_id").
		Where("po.project_id = ? AND role_assignments.status = ? AND role_assignments.committed_at IS NOT NULL",
			projectID, enums.ProposalStatusCountersigned).
		Order("role_assignments.created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
