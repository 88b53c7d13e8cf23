package controllers

import (
	"net/http"

	"github.com/guildworks/guildworks-backend/api/responses"
	"github.com/guildworks/guildworks-backend/api/validators"
	"github.com/guildworks/guildworks-backend/internal/treasury"
	"github.com/guildworks/guildworks-backend/pkg/logger"
)

type treasuryAdjustmentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Memo        string `json:"memo" validate:"required,min=3,max=500"`
}

// TreasuryBalance returns the current ledger balance and threshold progress.
func TreasuryBalance(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, err := svc.GetBalance(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// TreasuryTransactions lists ledger entries newest first.
func TreasuryTransactions(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txns, next, err := svc.ListTransactions(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, txns, next)
	}
}

// TreasuryAdjust records a manual correction. Negative amounts must not
// overdraw the balance; the service fails closed on that.
func TreasuryAdjust(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req treasuryAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.ManualAdjustment(r.Context(), treasury.AdjustmentInput{
			AmountCents: req.AmountCents,
			Memo:        req.Memo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// TreasuryRunBonus forces a threshold check and distribution right now.
func TreasuryRunBonus(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.RunBonus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, run)
	}
}

// TreasuryBonusRuns lists historical bonus runs newest first.
func TreasuryBonusRuns(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		runs, next, err := svc.ListBonusRuns(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, runs, next)
	}
}

// TreasuryBonusRunDetail returns one run with its recipient rows.
func TreasuryBonusRunDetail(svc treasury.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := validators.ParseUUIDParam(r, "runId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetBonusRun(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
