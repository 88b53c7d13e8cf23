package controllers

import (
	"net/http"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/assignment"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

// SlotScore previews the ranked bids for a slot without committing anything.
func SlotScore(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := validators.ParseUUIDParam(r, "slotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scored, err := svc.ScoreSlot(r.Context(), slotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, scored)
	}
}

// SlotAssign runs the scorer on one slot and commits or proposes the winner.
func SlotAssign(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := validators.ParseUUIDParam(r, "slotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assigned, err := svc.AssignSlot(r.Context(), slotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assigned)
	}
}

// OpportunityAssign runs the scorer across every unfilled slot.
func OpportunityAssign(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opportunityID, err := validators.ParseUUIDParam(r, "opportunityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		assigned, err := svc.AssignOpportunity(r.Context(), opportunityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assigned)
	}
}

// AssignmentCountersign commits a council-gated proposal.
func AssignmentCountersign(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := validators.ParseUUIDParam(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		councilID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		committed, err := svc.CountersignProposal(r.Context(), assignmentID, councilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, committed)
	}
}

// AssignmentReject declines a council-gated proposal, leaving the slot open.
func AssignmentReject(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := validators.ParseUUIDParam(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		councilID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rejected, err := svc.RejectProposal(r.Context(), assignmentID, councilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rejected)
	}
}

// AssignmentExpire sweeps proposals past their deadline.
func AssignmentExpire(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expired, err := svc.ExpireProposals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"expired": expired})
	}
}
