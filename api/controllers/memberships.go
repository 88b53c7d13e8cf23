package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type membershipRegisterRequest struct {
	DisplayName  string     `json:"display_name" validate:"required,min=2,max=120"`
	SupervisorID *string    `json:"supervisor_id,omitempty"`
	ActiveFrom   *time.Time `json:"active_from,omitempty"`
}

// MembershipRegister adds a contributor to the registry.
func MembershipRegister(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload membershipRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		supervisorID, err := parseOptionalUUID(payload.SupervisorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activeFrom := time.Now().UTC()
		if payload.ActiveFrom != nil {
			activeFrom = payload.ActiveFrom.UTC()
		}

		created, err := svc.RegisterMembership(r.Context(), registry.RegisterMembershipInput{
			DisplayName:  strings.TrimSpace(payload.DisplayName),
			SupervisorID: supervisorID,
			ActiveFrom:   activeFrom,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// MembershipDetail returns a membership with its skills and signal rows.
func MembershipDetail(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetMembership(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// MembershipList pages through the registry.
func MembershipList(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := svc.ListMemberships(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, rows, next)
	}
}

type skillRecordRequest struct {
	Category    string `json:"category" validate:"required,min=2,max=80"`
	Proficiency int    `json:"proficiency" validate:"required,min=1,max=5"`
}

// MembershipRecordSkill self-reports a skill; the acting membership counts as
// verifier when it meets the policy's minimum tier.
func MembershipRecordSkill(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload skillRecordRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := registry.RecordSkillInput{
			MembershipID: id,
			Category:     strings.TrimSpace(payload.Category),
			Proficiency:  payload.Proficiency,
		}
		if actor, err := actingMembership(r); err == nil && actor != id {
			input.VerifiedByID = &actor
		}

		skill, err := svc.RecordSkill(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, skill)
	}
}

type availabilityRequest struct {
	Status           string     `json:"status" validate:"required"`
	HoursPerWeek     int        `json:"hours_per_week" validate:"min=0,max=168"`
	MaxConcurrent    int        `json:"max_concurrent" validate:"required,min=1,max=20"`
	UnavailableUntil *time.Time `json:"unavailable_until,omitempty"`
}

// MembershipSetAvailability updates the bidding availability signal.
func MembershipSetAvailability(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload availabilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseAvailabilityStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid availability status"))
			return
		}

		availability, err := svc.SetAvailability(r.Context(), registry.SetAvailabilityInput{
			MembershipID:     id,
			Status:           status,
			HoursPerWeek:     payload.HoursPerWeek,
			MaxConcurrent:    payload.MaxConcurrent,
			UnavailableUntil: payload.UnavailableUntil,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

type workloadLogRequest struct {
	ProjectID    string     `json:"project_id" validate:"required,uuid"`
	Slot         string     `json:"slot" validate:"required"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	PlannedHours float64    `json:"planned_hours" validate:"gte=0"`
}

// MembershipLogWorkload opens a workload entry for an active engagement.
func MembershipLogWorkload(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload workloadLogRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := parseOptionalUUID(&payload.ProjectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slot, err := enums.ParseRoleSlotType(strings.TrimSpace(payload.Slot))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid role slot"))
			return
		}

		startDate := time.Now().UTC()
		if payload.StartDate != nil {
			startDate = payload.StartDate.UTC()
		}

		entry, err := svc.LogWorkload(r.Context(), registry.LogWorkloadInput{
			MembershipID: id,
			ProjectID:    *projectID,
			Slot:         slot,
			StartDate:    startDate,
			PlannedHours: payload.PlannedHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

type workloadCloseRequest struct {
	ProjectID   string     `json:"project_id" validate:"required,uuid"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	ActualHours float64    `json:"actual_hours" validate:"gte=0"`
}

// MembershipCloseWorkload ends an open workload entry with actual hours.
func MembershipCloseWorkload(svc registry.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload workloadCloseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projectID, err := parseOptionalUUID(&payload.ProjectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		endDate := time.Now().UTC()
		if payload.EndDate != nil {
			endDate = payload.EndDate.UTC()
		}

		entry, err := svc.CloseWorkload(r.Context(), registry.CloseWorkloadInput{
			MembershipID: id,
			ProjectID:    *projectID,
			EndDate:      endDate,
			ActualHours:  payload.ActualHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}
