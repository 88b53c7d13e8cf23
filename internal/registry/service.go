package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	dbtypes "github.com/guildworks/guildworks-backend/pkg/db/types"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Composite score weights. On-time delivery dominates, peer sentiment next,
// role breadth keeps generalists from scoring zero on a new slot type.
const (
	compositeOnTimeWeight  = 0.5
	compositePeerWeight    = 0.35
	compositeBreadthWeight = 0.15

	peerRatingScale  = 5.0
	breadthRoleCount = 5.0
)

// Service defines membership signal operations.
type Service interface {
	RegisterMembership(ctx context.Context, input RegisterMembershipInput) (*models.Membership, error)
	GetMembership(ctx context.Context, id uuid.UUID) (*MembershipDetail, error)
	ListMemberships(ctx context.Context, params pagination.Params) ([]models.Membership, string, error)
	RecordSkill(ctx context.Context, input RecordSkillInput) (*models.Skill, error)
	SetAvailability(ctx context.Context, input SetAvailabilityInput) (*models.Availability, error)
	LogWorkload(ctx context.Context, input LogWorkloadInput) (*models.WorkloadEntry, error)
	CloseWorkload(ctx context.Context, input CloseWorkloadInput) (*models.WorkloadEntry, error)
	RecordConsistencyEvent(ctx context.Context, input ConsistencyEventInput) (*models.ConsistencyMetrics, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	policy config.PolicyConfig
}

// RegisterMembershipInput captures a new contributor joining the collective.
type RegisterMembershipInput struct {
	DisplayName  string
	SupervisorID *uuid.UUID
	ActiveFrom   time.Time
}

// MembershipDetail aggregates a membership with its signal rows.
type MembershipDetail struct {
	Membership   models.Membership          `json:"membership"`
	Skills       []models.Skill             `json:"skills"`
	Availability *models.Availability       `json:"availability,omitempty"`
	Consistency  *models.ConsistencyMetrics `json:"consistency,omitempty"`
}

// RecordSkillInput is a self-report, optionally verified by a senior member.
type RecordSkillInput struct {
	MembershipID uuid.UUID
	Category     string
	Proficiency  int
	VerifiedByID *uuid.UUID
}

type SetAvailabilityInput struct {
	MembershipID     uuid.UUID
	Status           enums.AvailabilityStatus
	HoursPerWeek     int
	MaxConcurrent    int
	UnavailableUntil *time.Time
}

type LogWorkloadInput struct {
	MembershipID uuid.UUID
	ProjectID    uuid.UUID
	Slot         enums.RoleSlotType
	StartDate    time.Time
	PlannedHours float64
}

type CloseWorkloadInput struct {
	MembershipID uuid.UUID
	ProjectID    uuid.UUID
	EndDate      time.Time
	ActualHours  float64
}

// ConsistencyEventInput feeds the incremental consistency recompute. For
// project completions OnTime and Slot are read; for peer feedback Ratings is.
type ConsistencyEventInput struct {
	Event            enums.ConsistencyEvent
	MembershipID     uuid.UUID
	ProjectID        uuid.UUID
	OnTime           bool
	Slot             enums.RoleSlotType
	FromMembershipID uuid.UUID
	Ratings          map[string]float64
}

// NewService wires the registry service.
func NewService(repo Repository, tx txRunner, policy config.PolicyConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("registry repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, policy: policy}, nil
}

func (s *service) RegisterMembership(ctx context.Context, input RegisterMembershipInput) (*models.Membership, error) {
	if input.DisplayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name required")
	}
	activeFrom := input.ActiveFrom
	if activeFrom.IsZero() {
		activeFrom = time.Now().UTC()
	}

	membership := &models.Membership{
		DisplayName:  input.DisplayName,
		Tier:         enums.TierAssociate,
		SupervisorID: input.SupervisorID,
		ActiveFrom:   activeFrom,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.SupervisorID != nil {
			if _, err := repo.FindMembership(ctx, *input.SupervisorID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "supervisor not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supervisor")
			}
		}
		if err := repo.CreateMembership(ctx, membership); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create membership")
		}
		availability := &models.Availability{
			MembershipID:  membership.ID,
			Status:        enums.AvailabilityStatusAvailable,
			MaxConcurrent: 1,
		}
		if err := repo.SaveAvailability(ctx, availability); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed availability")
		}
		metrics := &models.ConsistencyMetrics{
			MembershipID: membership.ID,
			RoleCounts:   dbtypes.JSONMap{},
		}
		if err := repo.SaveConsistency(ctx, metrics); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed consistency metrics")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *service) GetMembership(ctx context.Context, id uuid.UUID) (*MembershipDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	membership, err := s.repo.FindMembership(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}

	detail := &MembershipDetail{Membership: *membership}
	if skills, err := s.repo.ListSkills(ctx, id); err == nil {
		detail.Skills = skills
	}
	if availability, err := s.repo.FindAvailability(ctx, id); err == nil {
		detail.Availability = availability
	}
	if metrics, err := s.repo.FindConsistency(ctx, id); err == nil {
		detail.Consistency = metrics
	}
	return detail, nil
}

func (s *service) ListMemberships(ctx context.Context, params pagination.Params) ([]models.Membership, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListMemberships(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list memberships")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) RecordSkill(ctx context.Context, input RecordSkillInput) (*models.Skill, error) {
	if input.MembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	if input.Category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category required")
	}
	if input.Proficiency < 1 || input.Proficiency > models.MaxProficiency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("proficiency must be between 1 and %d", models.MaxProficiency))
	}

	var skill *models.Skill
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindMembership(ctx, input.MembershipID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
		}

		if input.VerifiedByID != nil {
			verifier, err := repo.FindMembership(ctx, *input.VerifiedByID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "verifier not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load verifier")
			}
			if !verifier.IsCouncil && int(verifier.Tier) < s.policy.SkillVerifierMinTier {
				return pkgerrors.New(pkgerrors.CodeForbidden, "verifier tier below verification minimum")
			}
		}

		existing, err := repo.FindSkill(ctx, input.MembershipID, input.Category)
		switch {
		case err == nil:
			existing.Proficiency = input.Proficiency
			existing.VerifiedByID = input.VerifiedByID
			skill = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			skill = &models.Skill{
				MembershipID: input.MembershipID,
				Category:     input.Category,
				Proficiency:  input.Proficiency,
				VerifiedByID: input.VerifiedByID,
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load skill")
		}
		if err := repo.SaveSkill(ctx, skill); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save skill")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return skill, nil
}

func (s *service) SetAvailability(ctx context.Context, input SetAvailabilityInput) (*models.Availability, error) {
	if input.MembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid availability status %q", input.Status))
	}
	if input.HoursPerWeek < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hours per week must be non-negative")
	}
	if input.MaxConcurrent < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max concurrent must be at least 1")
	}

	var availability *models.Availability
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindAvailability(ctx, input.MembershipID)
		switch {
		case err == nil:
			availability = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			availability = &models.Availability{MembershipID: input.MembershipID}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability")
		}
		availability.Status = input.Status
		availability.HoursPerWeek = input.HoursPerWeek
		availability.MaxConcurrent = input.MaxConcurrent
		availability.UnavailableUntil = input.UnavailableUntil
		if err := repo.SaveAvailability(ctx, availability); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save availability")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return availability, nil
}

func (s *service) LogWorkload(ctx context.Context, input LogWorkloadInput) (*models.WorkloadEntry, error) {
	if input.MembershipID == uuid.Nil || input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id and project id required")
	}
	if !input.Slot.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role slot %q", input.Slot))
	}
	start := input.StartDate
	if start.IsZero() {
		start = time.Now().UTC()
	}

	entry := &models.WorkloadEntry{
		MembershipID: input.MembershipID,
		ProjectID:    input.ProjectID,
		Slot:         input.Slot,
		StartDate:    start,
		PlannedHours: input.PlannedHours,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateWorkloadEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create workload entry")
		}
		return s.adjustActiveProjects(ctx, repo, input.MembershipID, 1)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CloseWorkload(ctx context.Context, input CloseWorkloadInput) (*models.WorkloadEntry, error) {
	if input.MembershipID == uuid.Nil || input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id and project id required")
	}
	if input.ActualHours < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actual hours must be non-negative")
	}
	end := input.EndDate
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var entry *models.WorkloadEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenWorkloadEntry(ctx, input.MembershipID, input.ProjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no open workload entry for membership and project")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load workload entry")
		}
		if err := repo.CloseWorkloadEntry(ctx, open.ID, end, input.ActualHours); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close workload entry")
		}
		open.EndDate = &end
		hours := input.ActualHours
		open.ActualHours = &hours
		entry = open
		return s.adjustActiveProjects(ctx, repo, input.MembershipID, -1)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) adjustActiveProjects(ctx context.Context, repo Repository, membershipID uuid.UUID, delta int) error {
	availability, err := repo.FindAvailability(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			availability = &models.Availability{
				MembershipID:  membershipID,
				Status:        enums.AvailabilityStatusAvailable,
				MaxConcurrent: 1,
			}
		} else {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability")
		}
	}
	availability.ActiveProjectCount += delta
	if availability.ActiveProjectCount < 0 {
		availability.ActiveProjectCount = 0
	}
	if err := repo.SaveAvailability(ctx, availability); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save availability")
	}
	return nil
}

func (s *service) RecordConsistencyEvent(ctx context.Context, input ConsistencyEventInput) (*models.ConsistencyMetrics, error) {
	if input.MembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	if !input.Event.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid consistency event %q", input.Event))
	}

	var metrics *models.ConsistencyMetrics
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindConsistency(ctx, input.MembershipID)
		switch {
		case err == nil:
			metrics = current
		case errors.Is(err, gorm.ErrRecordNotFound):
			metrics = &models.ConsistencyMetrics{
				MembershipID: input.MembershipID,
				RoleCounts:   dbtypes.JSONMap{},
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consistency metrics")
		}
		if metrics.RoleCounts == nil {
			metrics.RoleCounts = dbtypes.JSONMap{}
		}

		switch input.Event {
		case enums.ConsistencyEventProjectCompleted:
			metrics.CompletedCount++
			if input.OnTime {
				metrics.OnTimeCount++
			}
			if input.Slot.IsValid() {
				metrics.RoleCounts[string(input.Slot)] = roleCount(metrics.RoleCounts, input.Slot) + 1
			}
		case enums.ConsistencyEventPeerFeedback:
			if len(input.Ratings) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "ratings required for peer feedback")
			}
			sum := 0.0
			for _, rating := range input.Ratings {
				if rating < 0 || rating > peerRatingScale {
					return pkgerrors.New(pkgerrors.CodeValidation,
						fmt.Sprintf("ratings must be within [0,%v]", peerRatingScale))
				}
				sum += rating
			}
			metrics.PeerRatingSum += sum / float64(len(input.Ratings))
			metrics.PeerRatingCount++

			if input.FromMembershipID != uuid.Nil && input.ProjectID != uuid.Nil {
				ratings := dbtypes.JSONMap{}
				for k, v := range input.Ratings {
					ratings[k] = v
				}
				feedback := &models.PeerFeedback{
					ProjectID:        input.ProjectID,
					FromMembershipID: input.FromMembershipID,
					ToMembershipID:   input.MembershipID,
					Ratings:          ratings,
				}
				if err := repo.CreatePeerFeedback(ctx, feedback); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record peer feedback")
				}
			}
		}

		metrics.CompositeScore = compositeScore(metrics)
		if err := repo.SaveConsistency(ctx, metrics); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save consistency metrics")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func roleCount(counts dbtypes.JSONMap, slot enums.RoleSlotType) float64 {
	raw, ok := counts[string(slot)]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// compositeScore folds the rolling aggregates into a single [0,1] number.
func compositeScore(m *models.ConsistencyMetrics) float64 {
	breadth := 0.0
	if m.RoleCounts != nil {
		distinct := 0
		for _, v := range m.RoleCounts {
			if roleCountValue(v) > 0 {
				distinct++
			}
		}
		breadth = float64(distinct) / breadthRoleCount
		if breadth > 1 {
			breadth = 1
		}
	}
	score := compositeOnTimeWeight*m.OnTimeRate() +
		compositePeerWeight*(m.PeerRatingAvg()/peerRatingScale) +
		compositeBreadthWeight*breadth
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func roleCountValue(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
