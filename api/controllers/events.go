package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/attribution"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/internal/projects"
	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type projectCreatedEventRequest struct {
	ProjectID        string               `json:"project_id" validate:"required,uuid"`
	Name             string               `json:"name" validate:"required,min=2,max=200"`
	FinalAmountCents int64                `json:"final_amount_cents" validate:"gte=0"`
	RoleSlots        []projectCreatedSlot `json:"role_slots" validate:"omitempty,max=12,dive"`
	BiddingDeadline  *time.Time           `json:"bidding_deadline" validate:"required_with=RoleSlots"`
}

type projectCreatedSlot struct {
	SlotType string `json:"slot_type" validate:"required"`
	Category string `json:"category" validate:"omitempty,max=120"`
}

type invoicePaidEventRequest struct {
	ProjectID   string             `json:"project_id" validate:"required,uuid"`
	PaidAt      *time.Time         `json:"paid_at"`
	OnTime      bool               `json:"on_time"`
	Multipliers map[string]float64 `json:"multipliers" validate:"omitempty,dive,gt=0"`
}

type peerFeedbackEventRequest struct {
	MembershipID     string             `json:"membership_id" validate:"required,uuid"`
	FromMembershipID string             `json:"from_membership_id" validate:"required,uuid"`
	ProjectID        string             `json:"project_id" validate:"omitempty,uuid"`
	Ratings          map[string]float64 `json:"ratings" validate:"required,min=1,dive,gte=0,lte=5"`
}

// EventProjectCreated mirrors an upstream project into the local table so
// later invoice events have something to attribute against. When the payload
// carries role slots, a draft opportunity is opened for them in the same
// request.
func EventProjectCreated(svc projects.Service, oppSvc opportunities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req projectCreatedEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projectID, _ := uuid.Parse(req.ProjectID)
		project, err := svc.RegisterProject(r.Context(), projects.RegisterProjectInput{
			ID:               projectID,
			Name:             req.Name,
			FinalAmountCents: req.FinalAmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if len(req.RoleSlots) == 0 {
			responses.WriteSuccessStatus(w, http.StatusCreated, project)
			return
		}

		slots := make([]opportunities.SlotInput, 0, len(req.RoleSlots))
		for _, slot := range req.RoleSlots {
			slotType, err := enums.ParseRoleSlotType(slot.SlotType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			slots = append(slots, opportunities.SlotInput{SlotType: slotType, Category: slot.Category})
		}
		detail, err := oppSvc.PublishOpportunity(r.Context(), opportunities.PublishOpportunityInput{
			ProjectID:       projectID,
			BiddingDeadline: *req.BiddingDeadline,
			Slots:           slots,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"project":     project,
			"opportunity": detail,
		})
	}
}

// EventInvoicePaid marks the project paid and immediately runs attribution.
// The whole distribution happens synchronously inside this request; the
// upstream retries on failure and idempotency absorbs the replays.
func EventInvoicePaid(projectSvc projects.Service, attrSvc attribution.Service, regSvc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invoicePaidEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projectID, _ := uuid.Parse(req.ProjectID)
		paidAt := time.Now().UTC()
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		multipliers, err := parseMultipliers(req.Multipliers)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if _, err := projectSvc.RecordInvoicePaid(ctx, projectID, paidAt); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := attrSvc.Attribute(ctx, attribution.Input{
			ProjectID:   projectID,
			Multipliers: multipliers,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Completion feeds each recipient's reliability aggregate. A failed
		// signal update must not fail the payout that already committed.
		if !result.AlreadyAttributed {
			for _, row := range result.Rows {
				if row.MembershipID == nil {
					continue
				}
				_, err := regSvc.RecordConsistencyEvent(ctx, registry.ConsistencyEventInput{
					Event:        enums.ConsistencyEventProjectCompleted,
					MembershipID: *row.MembershipID,
					ProjectID:    projectID,
					OnTime:       req.OnTime,
					Slot:         row.Slot,
				})
				if err != nil {
					logg.Error(logg.WithProjectID(ctx, projectID.String()), "consistency update failed after attribution", err)
				}
			}
		}

		if result.AlreadyAttributed {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// EventPeerFeedback folds a peer rating into the target's consistency metrics.
func EventPeerFeedback(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req peerFeedbackEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, _ := uuid.Parse(req.MembershipID)
		fromID, _ := uuid.Parse(req.FromMembershipID)
		var projectID uuid.UUID
		if req.ProjectID != "" {
			projectID, _ = uuid.Parse(req.ProjectID)
		}
		metrics, err := svc.RecordConsistencyEvent(r.Context(), registry.ConsistencyEventInput{
			Event:            enums.ConsistencyEventPeerFeedback,
			MembershipID:     membershipID,
			ProjectID:        projectID,
			FromMembershipID: fromID,
			Ratings:          req.Ratings,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, metrics)
	}
}
