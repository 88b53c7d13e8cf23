package opportunities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
)

// AcceptResult reports the state after a bid wins a slot.
type AcceptResult struct {
	Bid              *models.RoleBid
	Slot             *models.RoleSlot
	Opportunity      *models.ProjectOpportunity
	RejectedBidIDs   []uuid.UUID
	OpportunityReady bool // all slots filled; opportunity moved to assigned
}

// Accept is the single acceptance primitive: it marks the bid accepted on the
// slot, fills the slot, rejects pending bids left with no coverable slot, and
// advances the opportunity once every slot is filled. Callers run it on a
// tx-bound repository; the partial unique index on accepted bids backstops
// concurrent winners.
func Accept(ctx context.Context, r Repository, bidID, slotID uuid.UUID, now time.Time) (*AcceptResult, error) {
	bid, err := r.FindBidForUpdate(ctx, bidID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
	}
	if bid.Status != enums.BidStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid is not pending")
	}

	opportunity, err := r.FindOpportunityForUpdate(ctx, bid.OpportunityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "opportunity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opportunity")
	}
	if opportunity.Status != enums.OpportunityStatusBidding {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "opportunity is not accepting assignments")
	}

	slot, err := r.FindSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "role slot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role slot")
	}
	if slot.OpportunityID != bid.OpportunityID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot does not belong to the bid's opportunity")
	}
	if slot.Filled {
		return nil, pkgerrors.New(pkgerrors.CodeSlotAlreadyFilled, "role slot already filled")
	}
	if !bid.Covers(slot.SlotType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid does not cover the slot's role")
	}

	bid.Status = enums.BidStatusAccepted
	bid.AcceptedSlotID = &slot.ID
	decidedAt := now
	bid.DecidedAt = &decidedAt
	if err := r.SaveBid(ctx, bid); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save accepted bid")
	}
	if err := r.SetSlotFilled(ctx, slot.ID, true); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fill role slot")
	}
	slot.Filled = true

	result := &AcceptResult{Bid: bid, Slot: slot, Opportunity: opportunity}

	// Bids that can no longer land on any remaining slot get rejected so
	// their owners are free to bid elsewhere.
	slots, err := r.ListSlots(ctx, bid.OpportunityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list role slots")
	}
	pending, err := r.ListPendingBids(ctx, bid.OpportunityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending bids")
	}
	for i := range pending {
		candidate := &pending[i]
		if candidate.ID == bid.ID || coversAnyUnfilled(*candidate, slots) {
			continue
		}
		candidate.Status = enums.BidStatusRejected
		rejectedAt := now
		candidate.DecidedAt = &rejectedAt
		if err := r.SaveBid(ctx, candidate); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject uncoverable bid")
		}
		result.RejectedBidIDs = append(result.RejectedBidIDs, candidate.ID)
	}

	unfilled, err := r.CountUnfilledSlots(ctx, bid.OpportunityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unfilled slots")
	}
	if unfilled == 0 {
		if err := r.UpdateOpportunityStatus(ctx, bid.OpportunityID, enums.OpportunityStatusAssigned); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance opportunity")
		}
		opportunity.Status = enums.OpportunityStatusAssigned
		result.OpportunityReady = true
	}
	return result, nil
}

func coversAnyUnfilled(bid models.RoleBid, slots []models.RoleSlot) bool {
	for _, slot := range slots {
		if !slot.Filled && bid.Covers(slot.SlotType) {
			return true
		}
	}
	return false
}
