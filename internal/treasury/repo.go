package treasury

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guildworks/guildworks-backend/internal/repo"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

// Repository persists the treasury singleton, its append-only ledger, and
// bonus runs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetTreasury(ctx context.Context) (*models.Treasury, error)
	GetTreasuryForUpdate(ctx context.Context) (*models.Treasury, error)
	CreateTreasury(ctx context.Context, treasury *models.Treasury) error
	SaveTreasury(ctx context.Context, treasury *models.Treasury) error

	CreateTransaction(ctx context.Context, txn *models.TreasuryTransaction) error
	SumTransactions(ctx context.Context) (int64, error)
	ListTransactions(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.TreasuryTransaction, error)

	CreateBonusRun(ctx context.Context, run *models.BonusRun) error
	CreateBonusRunRecipients(ctx context.Context, recipients []models.BonusRunRecipient) error
	FindBonusRun(ctx context.Context, id uuid.UUID) (*models.BonusRun, error)
	ListBonusRuns(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.BonusRun, error)
	ListBonusRunRecipients(ctx context.Context, bonusRunID uuid.UUID) ([]models.BonusRunRecipient, error)
}

type gormRepository struct {
	repo.Base
}

// NewRepository builds the gorm-backed treasury repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Base: repo.NewBase(db)}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{Base: repo.NewBase(tx)}
}

func (r *gormRepository) GetTreasury(ctx context.Context) (*models.Treasury, error) {
	var treasury models.Treasury
	if err := r.DB(ctx).WithContext(ctx).First(&treasury, "id = ?", models.TreasurySingletonID).Error; err != nil {
		return nil, err
	}
	return &treasury, nil
}

// GetTreasuryForUpdate serializes every treasury mutation behind the
// singleton row lock.
func (r *gormRepository) GetTreasuryForUpdate(ctx context.Context) (*models.Treasury, error) {
	var treasury models.Treasury
	err := r.DB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&treasury, "id = ?", models.TreasurySingletonID).Error
	if err != nil {
		return nil, err
	}
	return &treasury, nil
}

func (r *gormRepository) CreateTreasury(ctx context.Context, treasury *models.Treasury) error {
	treasury.ID = models.TreasurySingletonID
	return r.DB(ctx).WithContext(ctx).Create(treasury).Error
}

func (r *gormRepository) SaveTreasury(ctx context.Context, treasury *models.Treasury) error {
	return r.DB(ctx).WithContext(ctx).Save(treasury).Error
}

func (r *gormRepository) CreateTransaction(ctx context.Context, txn *models.TreasuryTransaction) error {
	return r.DB(ctx).WithContext(ctx).Create(txn).Error
}

func (r *gormRepository) SumTransactions(ctx context.Context) (int64, error) {
	var sum *int64
	err := r.DB(ctx).WithContext(ctx).
		Model(&models.TreasuryTransaction{}).
		Select("SUM(amount_cents)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (r *gormRepository) ListTransactions(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.TreasuryTransaction, error) {
	query := r.DB(ctx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.TreasuryTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) CreateBonusRun(ctx context.Context, run *models.BonusRun) error {
	return r.DB(ctx).WithContext(ctx).Create(run).Error
}

func (r *gormRepository) CreateBonusRunRecipients(ctx context.Context, recipients []models.BonusRunRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return r.DB(ctx).WithContext(ctx).Create(&recipients).Error
}

func (r *gormRepository) FindBonusRun(ctx context.Context, id uuid.UUID) (*models.BonusRun, error) {
	var run models.BonusRun
	if err := r.DB(ctx).WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *gormRepository) ListBonusRuns(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.BonusRun, error) {
	query := r.DB(ctx).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.BonusRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) ListBonusRunRecipients(ctx context.Context, bonusRunID uuid.UUID) ([]models.BonusRunRecipient, error) {
	var rows []models.BonusRunRecipient
	err := r.DB(ctx).WithContext(ctx).
		Where("bonus_run_id = ?", bonusRunID).
		Order("amount_cents DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// IsTreasuryMissing reports whether the singleton has not been seeded yet.
func IsTreasuryMissing(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
