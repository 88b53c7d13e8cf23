package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service mirrors upstream project lifecycle events into local state.
type Service interface {
	RegisterProject(ctx context.Context, input RegisterProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, params pagination.Params) ([]models.Project, string, error)
	RecordInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.Project, error)
}

// RegisterProjectInput carries the fields of an upstream project-created
// notification. The ID is upstream-assigned and must be supplied.
type RegisterProjectInput struct {
	ID               uuid.UUID
	Name             string
	FinalAmountCents int64
}

type service struct {
	repo Repository
	tx   txRunner
}

func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("project repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) RegisterProject(ctx context.Context, input RegisterProjectInput) (*models.Project, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project name required")
	}
	if input.FinalAmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "final amount must be non-negative")
	}

	// Upstream retries deliveries, so a duplicate create resolves to the
	// row already mirrored.
	existing, err := s.repo.FindProject(ctx, input.ID)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}

	project := &models.Project{
		ID:               input.ID,
		Name:             input.Name,
		FinalAmountCents: input.FinalAmountCents,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create project")
	}
	return project, nil
}

func (s *service) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	project, err := s.repo.FindProject(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	return project, nil
}

func (s *service) ListProjects(ctx context.Context, params pagination.Params) ([]models.Project, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListProjects(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list projects")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) RecordInvoicePaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.Project, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var project *models.Project
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindProjectForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
		}
		if current.InvoicePaidAt != nil {
			project = current
			return nil
		}
		if err := repo.MarkInvoicePaid(ctx, id, paidAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
		}
		current.InvoicePaidAt = &paidAt
		project = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}
