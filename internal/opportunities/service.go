package opportunities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	dbtypes "github.com/guildworks/guildworks-backend/pkg/db/types"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// membershipFinder is the slice of the registry repository bidding needs.
type membershipFinder interface {
	FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
}

// projectFinder is the slice of the project repository publishing needs.
type projectFinder interface {
	FindProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// Service drives the opportunity and bidding lifecycle.
type Service interface {
	PublishOpportunity(ctx context.Context, input PublishOpportunityInput) (*OpportunityDetail, error)
	OpenBidding(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (*OpportunityDetail, error)
	ListOpportunities(ctx context.Context, input ListOpportunitiesInput) ([]models.ProjectOpportunity, string, error)
	SubmitBid(ctx context.Context, input SubmitBidInput) (*models.RoleBid, error)
	WithdrawBid(ctx context.Context, bidID, membershipID uuid.UUID) (*models.RoleBid, error)
	AcceptBid(ctx context.Context, input AcceptBidInput) (*AcceptResult, error)
	CloseOpportunity(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error)
}

type SlotInput struct {
	SlotType enums.RoleSlotType
	Category string
}

type PublishOpportunityInput struct {
	ProjectID               uuid.UUID
	MinimumRankTier         *int
	RequiresCouncilApproval bool
	BiddingDeadline         time.Time
	Slots                   []SlotInput
}

// OpportunityDetail bundles an opportunity with its slots and bids.
type OpportunityDetail struct {
	Opportunity models.ProjectOpportunity `json:"opportunity"`
	Slots       []models.RoleSlot         `json:"slots"`
	Bids        []models.RoleBid          `json:"bids,omitempty"`
}

type ListOpportunitiesInput struct {
	Status *enums.OpportunityStatus
	Page   pagination.Params
}

type SubmitBidInput struct {
	OpportunityID      uuid.UUID
	MembershipID       uuid.UUID
	PreferredRole      enums.RoleSlotType
	AlternateRole      *enums.RoleSlotType
	StatedHoursPerWeek int
	Confirmation       map[string]any
}

type AcceptBidInput struct {
	BidID  uuid.UUID
	SlotID uuid.UUID
}

type service struct {
	repo        Repository
	memberships membershipFinder
	projects    projectFinder
	tx          txRunner
	now         func() time.Time
}

// NewService wires the opportunity service.
func NewService(repo Repository, memberships membershipFinder, projects projectFinder, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("opportunity repository required")
	}
	if memberships == nil {
		return nil, fmt.Errorf("membership finder required")
	}
	if projects == nil {
		return nil, fmt.Errorf("project finder required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		memberships: memberships,
		projects:    projects,
		tx:          tx,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) PublishOpportunity(ctx context.Context, input PublishOpportunityInput) (*OpportunityDetail, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	if len(input.Slots) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one role slot required")
	}
	if !input.BiddingDeadline.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bidding deadline must be in the future")
	}
	if input.MinimumRankTier != nil {
		if _, err := enums.ParseTier(*input.MinimumRankTier); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "minimum rank tier")
		}
	}
	for _, slot := range input.Slots {
		if !slot.SlotType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid slot type %q", slot.SlotType))
		}
		if slot.Category == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot category required")
		}
	}

	if _, err := s.projects.FindProject(ctx, input.ProjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}

	opportunity := &models.ProjectOpportunity{
		ProjectID:               input.ProjectID,
		Status:                  enums.OpportunityStatusOpen,
		MinimumRankTier:         input.MinimumRankTier,
		RequiresCouncilApproval: input.RequiresCouncilApproval,
		BiddingDeadline:         input.BiddingDeadline.UTC(),
	}

	var slots []models.RoleSlot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOpportunity(ctx, opportunity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create opportunity")
		}
		slots = make([]models.RoleSlot, 0, len(input.Slots))
		for _, in := range input.Slots {
			slots = append(slots, models.RoleSlot{
				OpportunityID: opportunity.ID,
				SlotType:      in.SlotType,
				Category:      in.Category,
			})
		}
		if err := repo.CreateSlots(ctx, slots); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create role slots")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &OpportunityDetail{Opportunity: *opportunity, Slots: slots}, nil
}

func (s *service) OpenBidding(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	return s.transition(ctx, id, enums.OpportunityStatusBidding)
}

func (s *service) GetOpportunity(ctx context.Context, id uuid.UUID) (*OpportunityDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opportunity id required")
	}
	opportunity, err := s.repo.FindOpportunity(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
	}
	slots, err := s.repo.ListSlots(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list role slots")
	}
	bids, err := s.repo.ListBids(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	return &OpportunityDetail{Opportunity: *opportunity, Slots: slots, Bids: bids}, nil
}

func (s *service) ListOpportunities(ctx context.Context, input ListOpportunitiesInput) ([]models.ProjectOpportunity, string, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
	}
	cursor, err := pagination.ParseCursor(input.Page.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Page.Limit)
	rows, err := s.repo.ListOpportunities(ctx, input.Status, cursor, pagination.LimitWithBuffer(input.Page.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list opportunities")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) SubmitBid(ctx context.Context, input SubmitBidInput) (*models.RoleBid, error) {
	if input.OpportunityID == uuid.Nil || input.MembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opportunity id and membership id required")
	}
	if !input.PreferredRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid preferred role %q", input.PreferredRole))
	}
	if input.AlternateRole != nil {
		if !input.AlternateRole.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid alternate role %q", *input.AlternateRole))
		}
		if *input.AlternateRole == input.PreferredRole {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "alternate role must differ from preferred role")
		}
	}
	if input.StatedHoursPerWeek < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stated hours must be non-negative")
	}

	membership, err := s.memberships.FindMembership(ctx, input.MembershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}

	now := s.now()
	bid := &models.RoleBid{
		OpportunityID:      input.OpportunityID,
		MembershipID:       input.MembershipID,
		PreferredRole:      input.PreferredRole,
		AlternateRole:      input.AlternateRole,
		StatedHoursPerWeek: input.StatedHoursPerWeek,
		Status:             enums.BidStatusPending,
		SubmittedAt:        now,
	}
	if len(input.Confirmation) > 0 {
		confirmation := dbtypes.JSONMap{}
		for k, v := range input.Confirmation {
			confirmation[k] = v
		}
		bid.Confirmation = confirmation
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		opportunity, err := repo.FindOpportunityForUpdate(ctx, input.OpportunityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
		}
		switch opportunity.Status {
		case enums.OpportunityStatusBidding:
		case enums.OpportunityStatusOpen:
			// The first bid moves an open opportunity into bidding.
			if err := repo.UpdateOpportunityStatus(ctx, opportunity.ID, enums.OpportunityStatusBidding); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open bidding")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "opportunity is not accepting bids")
		}
		if !now.Before(opportunity.BiddingDeadline) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bidding deadline has passed")
		}
		if opportunity.MinimumRankTier != nil && int(membership.Tier) < *opportunity.MinimumRankTier {
			return pkgerrors.New(pkgerrors.CodeIneligibleRank,
				fmt.Sprintf("membership tier %d below required tier %d", membership.Tier, *opportunity.MinimumRankTier))
		}
		if _, err := repo.FindPendingBidByMembership(ctx, input.OpportunityID, input.MembershipID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "membership already has a pending bid on this opportunity")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing bid")
		}
		if err := repo.CreateBid(ctx, bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *service) WithdrawBid(ctx context.Context, bidID, membershipID uuid.UUID) (*models.RoleBid, error) {
	if bidID == uuid.Nil || membershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid id and membership id required")
	}

	var bid *models.RoleBid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindBidForUpdate(ctx, bidID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
		}
		if current.MembershipID != membershipID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the bidder can withdraw a bid")
		}
		if current.Status != enums.BidStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending bids can be withdrawn")
		}
		current.Status = enums.BidStatusWithdrawn
		decidedAt := s.now()
		current.DecidedAt = &decidedAt
		if err := repo.SaveBid(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw bid")
		}
		bid = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *service) AcceptBid(ctx context.Context, input AcceptBidInput) (*AcceptResult, error) {
	if input.BidID == uuid.Nil || input.SlotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid id and slot id required")
	}

	var result *AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = Accept(ctx, s.repo.WithTx(tx), input.BidID, input.SlotID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) CloseOpportunity(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opportunity id required")
	}

	var opportunity *models.ProjectOpportunity
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindOpportunityForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
		}
		if !current.Status.CanTransitionTo(enums.OpportunityStatusClosed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot close opportunity in status %q", current.Status))
		}
		// Pending bids become void when the opportunity closes.
		pending, err := repo.ListPendingBids(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending bids")
		}
		decidedAt := s.now()
		for i := range pending {
			pending[i].Status = enums.BidStatusRejected
			pending[i].DecidedAt = &decidedAt
			if err := repo.SaveBid(ctx, &pending[i]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject pending bid")
			}
		}
		if err := repo.UpdateOpportunityStatus(ctx, id, enums.OpportunityStatusClosed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close opportunity")
		}
		current.Status = enums.OpportunityStatusClosed
		opportunity = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opportunity, nil
}

func (s *service) transition(ctx context.Context, id uuid.UUID, next enums.OpportunityStatus) (*models.ProjectOpportunity, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opportunity id required")
	}

	var opportunity *models.ProjectOpportunity
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindOpportunityForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
		}
		if !current.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move opportunity from %q to %q", current.Status, next))
		}
		if err := repo.UpdateOpportunityStatus(ctx, id, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update opportunity status")
		}
		current.Status = next
		opportunity = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opportunity, nil
}
