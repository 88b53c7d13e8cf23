package controllers

import (
	"net/http"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/ranks"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

// RankEvaluate re-checks a membership against the tier thresholds. Normally
// promotion happens as a side effect of attribution; this endpoint exists for
// backfills and threshold changes.
func RankEvaluate(svc ranks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		membershipID, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		progression, err := svc.EvaluateMembership(r.Context(), membershipID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progression)
	}
}

// RankProgressions lists a membership's progression history, pending first.
func RankProgressions(svc ranks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		membershipID, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		progressions, err := svc.ListProgressions(r.Context(), membershipID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progressions)
	}
}

// RankApprove countersigns a pending senior-tier promotion.
func RankApprove(svc ranks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		progressionID, err := validators.ParseUUIDParam(r, "progressionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		councilID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		progression, err := svc.ApproveProgression(r.Context(), progressionID, councilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progression)
	}
}

// RankReject declines a pending promotion; the tier stays where it is.
func RankReject(svc ranks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		progressionID, err := validators.ParseUUIDParam(r, "progressionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		councilID, err := actingMembership(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		progression, err := svc.RejectProgression(r.Context(), progressionID, councilID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progression)
	}
}
