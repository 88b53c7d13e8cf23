package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/attribution"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type attributionRunRequest struct {
	// Multipliers optionally overrides the policy multiplier per member.
	// Keys are membership IDs; values must be positive.
	Multipliers map[string]float64 `json:"multipliers" validate:"omitempty,dive,gt=0"`
}

// AttributionRun distributes a paid project's revenue across its committed
// assignments. Replays return the existing rows with a 200.
func AttributionRun(svc attribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := validators.ParseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req attributionRunRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		multipliers, err := parseMultipliers(req.Multipliers)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Attribute(r.Context(), attribution.Input{
			ProjectID:   projectID,
			Multipliers: multipliers,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.AlreadyAttributed {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AttributionRows lists the attribution rows recorded for a project.
func AttributionRows(svc attribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := validators.ParseUUIDParam(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByProject(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func parseMultipliers(raw map[string]float64) (map[uuid.UUID]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	parsed := make(map[uuid.UUID]float64, len(raw))
	for key, value := range raw {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "multiplier key is not a membership id")
		}
		parsed[id] = value
	}
	return parsed, nil
}
