package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guildworks/guildworks-backend/api/controllers"
	"github.com/guildworks/guildworks-backend/api/middleware"
	"github.com/guildworks/guildworks-backend/internal/assignment"
	"github.com/guildworks/guildworks-backend/internal/attribution"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/internal/projects"
	"github.com/guildworks/guildworks-backend/internal/ranks"
	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/internal/treasury"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/logger"
	pkgredis "github.com/guildworks/guildworks-backend/pkg/redis"
)

// Services bundles every domain service the router mounts. Keeping them in a
// struct keeps NewRouter's signature stable as endpoints get added.
type Services struct {
	Registry      registry.Service
	Opportunities opportunities.Service
	Assignment    assignment.Service
	Projects      projects.Service
	Attribution   attribution.Service
	Treasury      treasury.Service
	Ranks         ranks.Service
}

// Pinger is the readiness probe surface of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP, redisP Pinger,
	redisClient *pkgredis.Client,
	promRegistry *prometheus.Registry,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Upstream, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/memberships", func(r chi.Router) {
			r.Post("/", controllers.MembershipRegister(svcs.Registry, logg))
			r.Get("/", controllers.MembershipList(svcs.Registry, logg))
			r.Get("/{membershipId}", controllers.MembershipDetail(svcs.Registry, logg))
			r.Post("/{membershipId}/skills", controllers.MembershipRecordSkill(svcs.Registry, logg))
			r.Put("/{membershipId}/availability", controllers.MembershipSetAvailability(svcs.Registry, logg))
			r.Post("/{membershipId}/workload", controllers.MembershipLogWorkload(svcs.Registry, logg))
			r.Post("/{membershipId}/workload/close", controllers.MembershipCloseWorkload(svcs.Registry, logg))
			r.Post("/{membershipId}/rank/evaluate", controllers.RankEvaluate(svcs.Ranks, logg))
			r.Get("/{membershipId}/rank/progressions", controllers.RankProgressions(svcs.Ranks, logg))
		})

		r.Route("/opportunities", func(r chi.Router) {
			r.Post("/", controllers.OpportunityPublish(svcs.Opportunities, logg))
			r.Get("/", controllers.OpportunityList(svcs.Opportunities, logg))
			r.Get("/{opportunityId}", controllers.OpportunityDetail(svcs.Opportunities, logg))
			r.Post("/{opportunityId}/open", controllers.OpportunityOpenBidding(svcs.Opportunities, logg))
			r.Post("/{opportunityId}/close", controllers.OpportunityClose(svcs.Opportunities, logg))
			r.Post("/{opportunityId}/bids", controllers.BidSubmit(svcs.Opportunities, logg))
			r.Post("/{opportunityId}/assign", controllers.OpportunityAssign(svcs.Assignment, logg))
		})

		r.Route("/bids", func(r chi.Router) {
			r.Post("/{bidId}/withdraw", controllers.BidWithdraw(svcs.Opportunities, logg))
			r.Post("/{bidId}/accept", controllers.BidAccept(svcs.Opportunities, logg))
		})

		r.Route("/slots", func(r chi.Router) {
			r.Get("/{slotId}/scores", controllers.SlotScore(svcs.Assignment, logg))
			r.Post("/{slotId}/assign", controllers.SlotAssign(svcs.Assignment, logg))
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Post("/{assignmentId}/countersign", controllers.AssignmentCountersign(svcs.Assignment, logg))
			r.Post("/{assignmentId}/reject", controllers.AssignmentReject(svcs.Assignment, logg))
			r.Post("/expire", controllers.AssignmentExpire(svcs.Assignment, logg))
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", controllers.ProjectList(svcs.Projects, logg))
			r.Get("/{projectId}", controllers.ProjectDetail(svcs.Projects, logg))
			r.Post("/{projectId}/attribution", controllers.AttributionRun(svcs.Attribution, logg))
			r.Get("/{projectId}/attribution", controllers.AttributionRows(svcs.Attribution, logg))
		})

		r.Route("/rank-progressions", func(r chi.Router) {
			r.Post("/{progressionId}/approve", controllers.RankApprove(svcs.Ranks, logg))
			r.Post("/{progressionId}/reject", controllers.RankReject(svcs.Ranks, logg))
		})

		r.Route("/treasury", func(r chi.Router) {
			r.Get("/balance", controllers.TreasuryBalance(svcs.Treasury, logg))
			r.Get("/transactions", controllers.TreasuryTransactions(svcs.Treasury, logg))
			r.Post("/adjustments", controllers.TreasuryAdjust(svcs.Treasury, logg))
			r.Post("/bonus-runs", controllers.TreasuryRunBonus(svcs.Treasury, logg))
			r.Get("/bonus-runs", controllers.TreasuryBonusRuns(svcs.Treasury, logg))
			r.Get("/bonus-runs/{runId}", controllers.TreasuryBonusRunDetail(svcs.Treasury, logg))
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/project-created", controllers.EventProjectCreated(svcs.Projects, svcs.Opportunities, logg))
			r.Post("/invoice-paid", controllers.EventInvoicePaid(svcs.Projects, svcs.Attribution, svcs.Registry, logg))
			r.Post("/peer-feedback", controllers.EventPeerFeedback(svcs.Registry, logg))
		})
	})

	return r
}
