package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/outbox/payloads"
)

const expireBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// signalReader is the slice of the registry repository scoring needs.
type signalReader interface {
	FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	FindSkill(ctx context.Context, membershipID uuid.UUID, category string) (*models.Skill, error)
	FindAvailability(ctx context.Context, membershipID uuid.UUID) (*models.Availability, error)
	FindConsistency(ctx context.Context, membershipID uuid.UUID) (*models.ConsistencyMetrics, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service scores pending bids and commits or proposes assignments.
type Service interface {
	ScoreSlot(ctx context.Context, slotID uuid.UUID) ([]ScoredBid, error)
	AssignSlot(ctx context.Context, slotID uuid.UUID) (*models.RoleAssignment, error)
	AssignOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleAssignment, error)
	CountersignProposal(ctx context.Context, assignmentID, councilMembershipID uuid.UUID) (*models.RoleAssignment, error)
	RejectProposal(ctx context.Context, assignmentID, councilMembershipID uuid.UUID) (*models.RoleAssignment, error)
	ExpireProposals(ctx context.Context) (int, error)
}

type service struct {
	repo    Repository
	opps    opportunities.Repository
	signals signalReader
	events  eventEmitter
	stats   *metrics.AllocationMetrics
	tx      txRunner
	scorer  scorer
	now     func() time.Time
}

// NewService wires the assignment service.
func NewService(
	repo Repository,
	opps opportunities.Repository,
	signals signalReader,
	events eventEmitter,
	stats *metrics.AllocationMetrics,
	tx txRunner,
	policy config.PolicyConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if opps == nil {
		return nil, fmt.Errorf("opportunity repository required")
	}
	if signals == nil {
		return nil, fmt.Errorf("signal reader required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		opps:    opps,
		signals: signals,
		events:  events,
		stats:   stats,
		tx:      tx,
		scorer:  scorer{weights: policy},
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ScoreSlot(ctx context.Context, slotID uuid.UUID) ([]ScoredBid, error) {
	if slotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot id required")
	}
	slot, err := s.opps.FindSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "role slot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role slot")
	}
	return s.scoreBidsForSlot(ctx, s.opps, *slot)
}

func (s *service) scoreBidsForSlot(ctx context.Context, opps opportunities.Repository, slot models.RoleSlot) ([]ScoredBid, error) {
	started := s.now()
	bids, err := opps.ListPendingBids(ctx, slot.OpportunityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending bids")
	}

	scored := make([]ScoredBid, 0, len(bids))
	for _, bid := range bids {
		if !bid.Covers(slot.SlotType) {
			continue
		}
		signals, err := s.collectSignals(ctx, bid, slot.Category)
		if err != nil {
			return nil, err
		}
		scored = append(scored, s.scorer.Score(slot, signals))
	}
	Rank(scored)

	s.stats.IncBidsScored(string(slot.SlotType), len(scored))
	s.stats.ObserveScoringDuration(s.now().Sub(started))
	return scored, nil
}

func (s *service) collectSignals(ctx context.Context, bid models.RoleBid, category string) (BidSignals, error) {
	signals := BidSignals{Bid: bid}

	membership, err := s.signals.FindMembership(ctx, bid.MembershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return signals, pkgerrors.New(pkgerrors.CodeNotFound, "bidding membership not found")
		}
		return signals, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	signals.Tier = membership.Tier

	if skill, err := s.signals.FindSkill(ctx, bid.MembershipID, category); err == nil {
		signals.Skill = skill
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return signals, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load skill")
	}
	if availability, err := s.signals.FindAvailability(ctx, bid.MembershipID); err == nil {
		signals.Availability = availability
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return signals, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability")
	}
	if consistency, err := s.signals.FindConsistency(ctx, bid.MembershipID); err == nil {
		signals.Consistency = consistency
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return signals, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load consistency metrics")
	}
	return signals, nil
}

func (s *service) AssignSlot(ctx context.Context, slotID uuid.UUID) (*models.RoleAssignment, error) {
	if slotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot id required")
	}

	var assignment *models.RoleAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		assignment, err = s.assignSlotTx(ctx, tx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) assignSlotTx(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) (*models.RoleAssignment, error) {
	opps := s.opps.WithTx(tx)
	repo := s.repo.WithTx(tx)

	slot, err := opps.FindSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "role slot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role slot")
	}
	if slot.Filled {
		return nil, pkgerrors.New(pkgerrors.CodeSlotAlreadyFilled, "role slot already filled")
	}
	opportunity, err := opps.FindOpportunityForUpdate(ctx, slot.OpportunityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
	}
	if opportunity.Status != enums.OpportunityStatusBidding {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "opportunity is not accepting assignments")
	}
	if _, err := repo.FindPendingProposalForSlot(ctx, slotID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "slot already has a pending proposal")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending proposal")
	}

	scored, err := s.scoreBidsForSlot(ctx, opps, *slot)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no pending bids cover this slot")
	}
	winner := scored[0]

	assignment := &models.RoleAssignment{
		OpportunityID:    slot.OpportunityID,
		SlotID:           slot.ID,
		BidID:            winner.BidID,
		MembershipID:     winner.MembershipID,
		SkillScore:       winner.SkillScore,
		WorkloadScore:    winner.WorkloadScore,
		ConsistencyScore: winner.ConsistencyScore,
		RankScore:        winner.RankScore,
		PreferenceScore:  winner.PreferenceScore,
		TotalScore:       winner.TotalScore,
		Status:           enums.ProposalStatusPending,
		ExpiresAt:        opportunity.BiddingDeadline,
	}

	if opportunity.RequiresCouncilApproval {
		// Council-gated: record the proposal only. The winning bid stays
		// pending until a council member countersigns.
		if err := repo.CreateAssignment(ctx, assignment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment proposal")
		}
		return assignment, nil
	}

	return assignment, s.commitAssignment(ctx, tx, repo, opps, assignment, opportunity.ProjectID, slot.SlotType, nil)
}

// commitAssignment accepts the winning bid, stamps the audit row committed,
// and queues the published event, all inside the caller's transaction.
func (s *service) commitAssignment(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	opps opportunities.Repository,
	assignment *models.RoleAssignment,
	projectID uuid.UUID,
	slotType enums.RoleSlotType,
	countersignedBy *uuid.UUID,
) error {
	now := s.now()
	if _, err := opportunities.Accept(ctx, opps, assignment.BidID, assignment.SlotID, now); err != nil {
		return err
	}

	assignment.Status = enums.ProposalStatusCountersigned
	assignment.CountersignedByID = countersignedBy
	assignment.CommittedAt = &now
	if assignment.ID == uuid.Nil {
		if err := repo.CreateAssignment(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
		}
	} else {
		if err := repo.SaveAssignment(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save assignment")
		}
	}

	event := payloads.RoleAssignedEvent{
		OpportunityID: assignment.OpportunityID,
		ProjectID:     projectID,
		SlotID:        assignment.SlotID,
		BidID:         assignment.BidID,
		MembershipID:  assignment.MembershipID,
		SlotType:      slotType,
		TotalScore:    assignment.TotalScore,
		AssignedAt:    now,
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRoleAssigned,
		AggregateType: enums.AggregateOpportunity,
		AggregateID:   assignment.OpportunityID,
		Data:          event,
		OccurredAt:    now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue role assigned event")
	}

	s.stats.IncAssignments(string(slotType))
	return nil
}

func (s *service) AssignOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.RoleAssignment, error) {
	if opportunityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opportunity id required")
	}
	slots, err := s.opps.ListSlots(ctx, opportunityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list role slots")
	}

	var assignments []models.RoleAssignment
	for _, slot := range slots {
		if slot.Filled {
			continue
		}
		assignment, err := s.AssignSlot(ctx, slot.ID)
		if err != nil {
			// A slot with no coverage is skipped, not fatal: the rest of
			// the opportunity can still staff up.
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				continue
			}
			return nil, err
		}
		assignments = append(assignments, *assignment)
	}
	return assignments, nil
}

func (s *service) CountersignProposal(ctx context.Context, assignmentID, councilMembershipID uuid.UUID) (*models.RoleAssignment, error) {
	if assignmentID == uuid.Nil || councilMembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id and council membership id required")
	}
	council, err := s.requireCouncil(ctx, councilMembershipID)
	if err != nil {
		return nil, err
	}

	var assignment *models.RoleAssignment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		opps := s.opps.WithTx(tx)

		current, err := repo.FindAssignmentForUpdate(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
		}
		if current.Status != enums.ProposalStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal is not pending")
		}
		if !s.now().Before(current.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal has expired")
		}

		opportunity, err := opps.FindOpportunity(ctx, current.OpportunityID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
		}
		slot, err := opps.FindSlot(ctx, current.SlotID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role slot")
		}

		councilID := council.ID
		if err := s.commitAssignment(ctx, tx, repo, opps, current, opportunity.ProjectID, slot.SlotType, &councilID); err != nil {
			return err
		}
		assignment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) RejectProposal(ctx context.Context, assignmentID, councilMembershipID uuid.UUID) (*models.RoleAssignment, error) {
	if assignmentID == uuid.Nil || councilMembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id and council membership id required")
	}
	council, err := s.requireCouncil(ctx, councilMembershipID)
	if err != nil {
		return nil, err
	}

	var assignment *models.RoleAssignment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindAssignmentForUpdate(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
		}
		if current.Status != enums.ProposalStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal is not pending")
		}
		current.Status = enums.ProposalStatusRejected
		councilID := council.ID
		current.CountersignedByID = &councilID
		if err := repo.SaveAssignment(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject proposal")
		}
		assignment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// ExpireProposals marks pending proposals past their deadline expired. The
// winning bid was never accepted, so the slot is still open and simply goes
// back into the scoring pool.
func (s *service) ExpireProposals(ctx context.Context) (int, error) {
	expired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListExpiredPendingProposals(ctx, s.now(), expireBatchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired proposals")
		}
		for i := range rows {
			rows[i].Status = enums.ProposalStatusExpired
			if err := repo.SaveAssignment(ctx, &rows[i]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire proposal")
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (s *service) requireCouncil(ctx context.Context, membershipID uuid.UUID) (*models.Membership, error) {
	membership, err := s.signals.FindMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "council membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load council membership")
	}
	if !membership.IsCouncil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "countersigning requires a council membership")
	}
	return membership, nil
}
