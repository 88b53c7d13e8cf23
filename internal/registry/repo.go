package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

// Repository manages persistence for memberships and their signals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateMembership(ctx context.Context, membership *models.Membership) error
	FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	FindMembershipForUpdate(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	ListMemberships(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Membership, error)
	ListActiveMemberships(ctx context.Context, asOf time.Time) ([]models.Membership, error)
	UpdateMembershipTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error
	AddCumulativeRevenue(ctx context.Context, id uuid.UUID, deltaCents int64) error

	FindSkill(ctx context.Context, membershipID uuid.UUID, category string) (*models.Skill, error)
	ListSkills(ctx context.Context, membershipID uuid.UUID) ([]models.Skill, error)
	SaveSkill(ctx context.Context, skill *models.Skill) error

	FindAvailability(ctx context.Context, membershipID uuid.UUID) (*models.Availability, error)
	SaveAvailability(ctx context.Context, availability *models.Availability) error

	CreateWorkloadEntry(ctx context.Context, entry *models.WorkloadEntry) error
	FindOpenWorkloadEntry(ctx context.Context, membershipID, projectID uuid.UUID) (*models.WorkloadEntry, error)
	CloseWorkloadEntry(ctx context.Context, id uuid.UUID, endDate time.Time, actualHours float64) error
	ListOpenWorkloadEntriesByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkloadEntry, error)
	ListWorkloadEntriesByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkloadEntry, error)

	FindConsistency(ctx context.Context, membershipID uuid.UUID) (*models.ConsistencyMetrics, error)
	SaveConsistency(ctx context.Context, metrics *models.ConsistencyMetrics) error

	CreatePeerFeedback(ctx context.Context, feedback *models.PeerFeedback) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a registry repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateMembership(ctx context.Context, membership *models.Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *repository) FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	if err := r.db.WithContext(ctx).First(&membership, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *repository) FindMembershipForUpdate(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&membership, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *repository) ListActiveMemberships(ctx context.Context, asOf time.Time) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("active_from <= ? AND (active_until IS NULL OR active_until > ?)", asOf, asOf).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateMembershipTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error {
	result := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ?", id).
		Update("tier", tier)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) AddCumulativeRevenue(ctx context.Context, id uuid.UUID, deltaCents int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ?", id).
		Update("cumulative_revenue_cents", gorm.Expr("cumulative_revenue_cents + ?", deltaCents))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListMemberships(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Membership, error) {
	query := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Membership
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindSkill(ctx context.Context, membershipID uuid.UUID, category string) (*models.Skill, error) {
	var skill models.Skill
	err := r.db.WithContext(ctx).
		Where("membership_id = ? AND category = ?", membershipID, category).
		First(&skill).Error
	if err != nil {
		return nil, err
	}
	return &skill, nil
}

func (r *repository) ListSkills(ctx context.Context, membershipID uuid.UUID) ([]models.Skill, error) {
	var skills []models.Skill
	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("category ASC").
		Find(&skills).Error
	return skills, err
}

func (r *repository) SaveSkill(ctx context.Context, skill *models.Skill) error {
	return r.db.WithContext(ctx).Save(skill).Error
}

func (r *repository) FindAvailability(ctx context.Context, membershipID uuid.UUID) (*models.Availability, error) {
	var availability models.Availability
	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		First(&availability).Error
	if err != nil {
		return nil, err
	}
	return &availability, nil
}

func (r *repository) SaveAvailability(ctx context.Context, availability *models.Availability) error {
	return r.db.WithContext(ctx).Save(availability).Error
}

func (r *repository) CreateWorkloadEntry(ctx context.Context, entry *models.WorkloadEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindOpenWorkloadEntry(ctx context.Context, membershipID, projectID uuid.UUID) (*models.WorkloadEntry, error) {
	var entry models.WorkloadEntry
	err := r.db.WithContext(ctx).
		Where("membership_id = ? AND project_id = ? AND end_date IS NULL", membershipID, projectID).
		Order("start_date ASC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CloseWorkloadEntry(ctx context.Context, id uuid.UUID, endDate time.Time, actualHours float64) error {
	return r.db.WithContext(ctx).Model(&models.WorkloadEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"end_date":     endDate,
			"actual_hours": actualHours,
		}).Error
}

func (r *repository) ListOpenWorkloadEntriesByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkloadEntry, error) {
	var entries []models.WorkloadEntry
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND end_date IS NULL", projectID).
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListWorkloadEntriesByProject(ctx context.Context, projectID uuid.UUID) ([]models.WorkloadEntry, error) {
	var entries []models.WorkloadEntry
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("start_date ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) FindConsistency(ctx context.Context, membershipID uuid.UUID) (*models.ConsistencyMetrics, error) {
	var metrics models.ConsistencyMetrics
	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		First(&metrics).Error
	if err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (r *repository) SaveConsistency(ctx context.Context, metrics *models.ConsistencyMetrics) error {
	return r.db.WithContext(ctx).Save(metrics).Error
}

func (r *repository) CreatePeerFeedback(ctx context.Context, feedback *models.PeerFeedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}
