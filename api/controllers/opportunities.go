package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type slotRequest struct {
	SlotType string `json:"slot_type" validate:"required"`
	Category string `json:"category" validate:"required,min=2,max=80"`
}

type opportunityPublishRequest struct {
	ProjectID               string        `json:"project_id" validate:"required,uuid"`
	MinimumRankTier         *int          `json:"minimum_rank_tier,omitempty" validate:"omitempty,min=1,max=6"`
	RequiresCouncilApproval bool          `json:"requires_council_approval"`
	BiddingDeadline         time.Time     `json:"bidding_deadline" validate:"required"`
	Slots                   []slotRequest `json:"slots" validate:"required,min=1,max=12,dive"`
}

// OpportunityPublish opens a project's role slots for bidding.
func OpportunityPublish(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload opportunityPublishRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := parseOptionalUUID(&payload.ProjectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		slots := make([]opportunities.SlotInput, 0, len(payload.Slots))
		for _, slot := range payload.Slots {
			slotType, err := enums.ParseRoleSlotType(strings.TrimSpace(slot.SlotType))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid role slot type"))
				return
			}
			slots = append(slots, opportunities.SlotInput{
				SlotType: slotType,
				Category: strings.TrimSpace(slot.Category),
			})
		}

		detail, err := svc.PublishOpportunity(r.Context(), opportunities.PublishOpportunityInput{
			ProjectID:               *projectID,
			MinimumRankTier:         payload.MinimumRankTier,
			RequiresCouncilApproval: payload.RequiresCouncilApproval,
			BiddingDeadline:         payload.BiddingDeadline.UTC(),
			Slots:                   slots,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// OpportunityOpenBidding moves a published opportunity into bidding.
func OpportunityOpenBidding(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "opportunityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		opportunity, err := svc.OpenBidding(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, opportunity)
	}
}

// OpportunityDetail returns an opportunity with its slots and bids.
func OpportunityDetail(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "opportunityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetOpportunity(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// OpportunityList pages opportunities, optionally filtered by status.
func OpportunityList(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := opportunities.ListOpportunitiesInput{Page: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOpportunityStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid opportunity status"))
				return
			}
			input.Status = &status
		}

		rows, next, err := svc.ListOpportunities(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, rows, next)
	}
}

// OpportunityClose rejects outstanding bids and closes the opportunity.
func OpportunityClose(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "opportunityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		opportunity, err := svc.CloseOpportunity(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, opportunity)
	}
}
