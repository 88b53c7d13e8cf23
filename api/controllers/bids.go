package controllers

import (
	"net/http"
	"strings"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type bidSubmitRequest struct {
	PreferredRole      string         `json:"preferred_role" validate:"required"`
	AlternateRole      *string        `json:"alternate_role,omitempty"`
	StatedHoursPerWeek int            `json:"stated_hours_per_week" validate:"required,min=1,max=168"`
	Confirmation       map[string]any `json:"confirmation,omitempty"`
}

// BidSubmit places the acting membership's bid on an opportunity.
func BidSubmit(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opportunityID, err := validators.ParseUUIDParam(r, "opportunityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bidSubmitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preferred, err := enums.ParseRoleSlotType(strings.TrimSpace(payload.PreferredRole))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid preferred role"))
			return
		}

		input := opportunities.SubmitBidInput{
			OpportunityID:      opportunityID,
			MembershipID:       membershipID,
			PreferredRole:      preferred,
			StatedHoursPerWeek: payload.StatedHoursPerWeek,
			Confirmation:       payload.Confirmation,
		}
		if payload.AlternateRole != nil && *payload.AlternateRole != "" {
			alternate, err := enums.ParseRoleSlotType(strings.TrimSpace(*payload.AlternateRole))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid alternate role"))
				return
			}
			input.AlternateRole = &alternate
		}

		bid, err := svc.SubmitBid(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bid)
	}
}

// BidWithdraw pulls a pending bid; only its owner may do so.
func BidWithdraw(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bidID, err := validators.ParseUUIDParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bid, err := svc.WithdrawBid(r.Context(), bidID, membershipID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bid)
	}
}

type bidAcceptRequest struct {
	SlotID string `json:"slot_id" validate:"required,uuid"`
}

// BidAccept manually accepts a bid into a slot, bypassing the scorer.
func BidAccept(svc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bidID, err := validators.ParseUUIDParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bidAcceptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slotID, err := parseOptionalUUID(&payload.SlotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AcceptBid(r.Context(), opportunities.AcceptBidInput{
			BidID:  bidID,
			SlotID: *slotID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
