package ranks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service evaluates revenue-driven tier progression.
type Service interface {
	EvaluateMembership(ctx context.Context, membershipID uuid.UUID) (*models.RankProgression, error)
	EvaluateMembershipTx(ctx context.Context, tx *gorm.DB, membershipID uuid.UUID) (*models.RankProgression, error)
	ApproveProgression(ctx context.Context, progressionID, councilMembershipID uuid.UUID) (*models.RankProgression, error)
	RejectProgression(ctx context.Context, progressionID, councilMembershipID uuid.UUID) (*models.RankProgression, error)
	ListProgressions(ctx context.Context, membershipID uuid.UUID) ([]models.RankProgression, error)
}

type service struct {
	repo    Repository
	members registry.Repository
	events  eventEmitter
	stats   *metrics.AllocationMetrics
	tx      txRunner
	policy  config.PolicyConfig
	now     func() time.Time
}

// NewService wires the rank progression service.
func NewService(
	repo Repository,
	members registry.Repository,
	events eventEmitter,
	stats *metrics.AllocationMetrics,
	tx txRunner,
	policy config.PolicyConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rank repository required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		members: members,
		events:  events,
		stats:   stats,
		tx:      tx,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// eligibleTier returns the highest tier whose revenue threshold the
// membership has reached.
func (s *service) eligibleTier(cumulativeRevenueCents int64) enums.Tier {
	eligible := enums.MinTier
	for i, threshold := range s.policy.TierThresholdsCents {
		if cumulativeRevenueCents >= threshold {
			eligible = enums.Tier(i + 1)
		}
	}
	return eligible
}

func (s *service) EvaluateMembership(ctx context.Context, membershipID uuid.UUID) (*models.RankProgression, error) {
	var progression *models.RankProgression
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		progression, err = s.EvaluateMembershipTx(ctx, tx, membershipID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return progression, nil
}

// EvaluateMembershipTx compares cumulative revenue against the tier table
// inside the caller's transaction. Crossing several thresholds at once yields
// one progression straight to the highest eligible tier; a nil result means
// no promotion is due.
func (s *service) EvaluateMembershipTx(ctx context.Context, tx *gorm.DB, membershipID uuid.UUID) (*models.RankProgression, error) {
	if membershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	repo := s.repo.WithTx(tx)
	members := s.members.WithTx(tx)

	membership, err := members.FindMembershipForUpdate(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}

	eligible := s.eligibleTier(membership.CumulativeRevenueCents)
	if eligible <= membership.Tier {
		return nil, nil
	}

	// An already-open proposal is raised to the new tier instead of stacking
	// a second row.
	if pending, err := repo.FindPendingByMembership(ctx, membershipID); err == nil {
		if pending.ToTier >= eligible {
			return pending, nil
		}
		pending.ToTier = eligible
		pending.CumulativeRevenueCents = membership.CumulativeRevenueCents
		if err := repo.SaveProgression(ctx, pending); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "raise pending progression")
		}
		return pending, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending progression")
	}

	progression := &models.RankProgression{
		MembershipID:           membershipID,
		FromTier:               membership.Tier,
		ToTier:                 eligible,
		CumulativeRevenueCents: membership.CumulativeRevenueCents,
		Status:                 enums.ProposalStatusPending,
	}

	if int(eligible) >= s.policy.RankCouncilApprovalMinTier {
		// Senior tiers need a council countersign before the tier applies.
		if err := repo.CreateProgression(ctx, progression); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rank proposal")
		}
		return progression, nil
	}

	now := s.now()
	progression.Status = enums.ProposalStatusCountersigned
	progression.DecidedAt = &now
	if err := repo.CreateProgression(ctx, progression); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rank progression")
	}
	if err := members.UpdateMembershipTier(ctx, membershipID, eligible); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply promotion")
	}
	if err := s.emitPromoted(ctx, tx, progression, false, now); err != nil {
		return nil, err
	}
	return progression, nil
}

func (s *service) ApproveProgression(ctx context.Context, progressionID, councilMembershipID uuid.UUID) (*models.RankProgression, error) {
	if progressionID == uuid.Nil || councilMembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "progression id and council membership id required")
	}
	council, err := s.requireCouncil(ctx, councilMembershipID)
	if err != nil {
		return nil, err
	}

	var progression *models.RankProgression
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		members := s.members.WithTx(tx)

		current, err := repo.FindProgressionForUpdate(ctx, progressionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "rank progression not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rank progression")
		}
		if current.Status != enums.ProposalStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rank progression is not pending")
		}

		membership, err := members.FindMembershipForUpdate(ctx, current.MembershipID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
		}

		now := s.now()
		current.Status = enums.ProposalStatusCountersigned
		councilID := council.ID
		current.ApprovedByID = &councilID
		current.DecidedAt = &now
		if err := repo.SaveProgression(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve rank progression")
		}
		// Tier only moves up. A stale proposal below the current tier is
		// recorded as approved but changes nothing.
		if current.ToTier > membership.Tier {
			if err := members.UpdateMembershipTier(ctx, current.MembershipID, current.ToTier); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply promotion")
			}
			if err := s.emitPromoted(ctx, tx, current, true, now); err != nil {
				return err
			}
		}
		progression = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progression, nil
}

func (s *service) RejectProgression(ctx context.Context, progressionID, councilMembershipID uuid.UUID) (*models.RankProgression, error) {
	if progressionID == uuid.Nil || councilMembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "progression id and council membership id required")
	}
	council, err := s.requireCouncil(ctx, councilMembershipID)
	if err != nil {
		return nil, err
	}

	var progression *models.RankProgression
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindProgressionForUpdate(ctx, progressionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "rank progression not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rank progression")
		}
		if current.Status != enums.ProposalStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rank progression is not pending")
		}
		now := s.now()
		current.Status = enums.ProposalStatusRejected
		councilID := council.ID
		current.ApprovedByID = &councilID
		current.DecidedAt = &now
		if err := repo.SaveProgression(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject rank progression")
		}
		progression = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progression, nil
}

func (s *service) ListProgressions(ctx context.Context, membershipID uuid.UUID) ([]models.RankProgression, error) {
	if membershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "membership id required")
	}
	rows, err := s.repo.ListByMembership(ctx, membershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rank progressions")
	}
	return rows, nil
}

func (s *service) emitPromoted(ctx context.Context, tx *gorm.DB, progression *models.RankProgression, councilApproved bool, at time.Time) error {
	event := payloads.RankPromotedEvent{
		MembershipID:           progression.MembershipID,
		FromTier:               int(progression.FromTier),
		ToTier:                 int(progression.ToTier),
		CumulativeRevenueCents: progression.CumulativeRevenueCents,
		CouncilApproved:        councilApproved,
		PromotedAt:             at,
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRankPromoted,
		AggregateType: enums.AggregateMembership,
		AggregateID:   progression.MembershipID,
		Data:          event,
		OccurredAt:    at,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue rank promoted event")
	}
	s.stats.IncRankPromotion(fmt.Sprintf("%d", int(progression.ToTier)))
	return nil
}

func (s *service) requireCouncil(ctx context.Context, membershipID uuid.UUID) (*models.Membership, error) {
	membership, err := s.members.FindMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "council membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load council membership")
	}
	if !membership.IsCouncil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "rank approval requires a council membership")
	}
	return membership, nil
}
