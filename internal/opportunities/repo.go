package opportunities

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

// Repository persists opportunities, their role slots, and bids.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOpportunity(ctx context.Context, opportunity *models.ProjectOpportunity) error
	FindOpportunity(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error)
	FindOpportunityForUpdate(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error)
	ListOpportunities(ctx context.Context, status *enums.OpportunityStatus, cursor *pagination.Cursor, limit int) ([]models.ProjectOpportunity, error)
	UpdateOpportunityStatus(ctx context.Context, id uuid.UUID, status enums.OpportunityStatus) error

	CreateSlots(ctx context.Context, slots []models.RoleSlot) error
	FindSlot(ctx context.Context, id uuid.UUID) (*models.RoleSlot, error)
	ListSlots(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleSlot, error)
	SetSlotFilled(ctx context.Context, id uuid.UUID, filled bool) error
	CountUnfilledSlots(ctx context.Context, opportunityID uuid.UUID) (int64, error)

	CreateBid(ctx context.Context, bid *models.RoleBid) error
	FindBid(ctx context.Context, id uuid.UUID) (*models.RoleBid, error)
	FindBidForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleBid, error)
	FindPendingBidByMembership(ctx context.Context, opportunityID, membershipID uuid.UUID) (*models.RoleBid, error)
	ListBids(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error)
	ListPendingBids(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error)
	SaveBid(ctx context.Context, bid *models.RoleBid) error
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed opportunity repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) CreateOpportunity(ctx context.Context, opportunity *models.ProjectOpportunity) error {
	return r.DB(ctx).WithContext(ctx).Create(opportunity).Error
}

func (r *gormRepository) FindOpportunity(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	var opportunity models.ProjectOpportunity
	if err := r.DB(ctx).WithContext(ctx).First(&opportunity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func (r *gormRepository) FindOpportunityForUpdate(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	var opportunity models.ProjectOpportunity
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&opportunity, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &opportunity, nil
}

func (r *gormRepository) ListOpportunities(ctx context.Context, status *enums.OpportunityStatus, cursor *pagination.Cursor, limit int) ([]models.ProjectOpportunity, error) {
	query := r.DB(ctx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.ProjectOpportunity
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) UpdateOpportunityStatus(ctx context.Context, id uuid.UUID, status enums.OpportunityStatus) error {
	result := r.DB(ctx).WithContext(ctx).
		Model(&models.ProjectOpportunity{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) CreateSlots(ctx context.Context, slots []models.RoleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	return r.DB(ctx).WithContext(ctx).Create(&slots).Error
}

func (r *gormRepository) FindSlot(ctx context.Context, id uuid.UUID) (*models.RoleSlot, error) {
	var slot models.RoleSlot
	if err := r.DB(ctx).WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *gormRepository) ListSlots(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleSlot, error) {
	var rows []models.RoleSlot
	err := r.DB(ctx).WithContext(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) SetSlotFilled(ctx context.Context, id uuid.UUID, filled bool) error {
	result := r.DB(ctx).WithContext(ctx).
		Model(&models.RoleSlot{}).
		Where("id = ?", id).
		Update("filled", filled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) CountUnfilledSlots(ctx context.Context, opportunityID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).WithContext(ctx).
		Model(&models.RoleSlot{}).
		Where("opportunity_id = ? AND filled = ?", opportunityID, false).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CreateBid(ctx context.Context, bid *models.RoleBid) error {
	return r.DB(ctx).WithContext(ctx).Create(bid).Error
}

func (r *gormRepository) FindBid(ctx context.Context, id uuid.UUID) (*models.RoleBid, error) {
	var bid models.RoleBid
	if err := r.DB(ctx).WithContext(ctx).First(&bid, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *gormRepository) FindBidForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleBid, error) {
	var bid models.RoleBid
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&bid, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *gormRepository) FindPendingBidByMembership(ctx context.Context, opportunityID, membershipID uuid.UUID) (*models.RoleBid, error) {
	var bid models.RoleBid
	err := r.DB(ctx).WithContext(ctx).
		Where("opportunity_id = ? AND membership_id = ? AND status = ?",
			opportunityID, membershipID, enums.BidStatusPending).
		First(&bid).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *gormRepository) ListBids(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	var rows []models.RoleBid
	err := r.DB(ctx).WithContext(ctx).
		Where("opportunity_id = ?", opportunityID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPendingBids orders by submission time so score ties resolve to the
// earliest bid deterministically.
func (r *gormRepository) ListPendingBids(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	var rows []models.RoleBid
	err := r.DB(ctx).WithContext(ctx).
		Where("opportunity_id = ? AND status = ?", opportunityID, enums.BidStatusPending).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) SaveBid(ctx context.Context, bid *models.RoleBid) error {
	bid.UpdatedAt = time.Now().UTC()
	return r.DB(ctx).WithContext(ctx).Save(bid).Error
}
