package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AllocationMetrics tracks the work-allocation and treasury engines.
type AllocationMetrics struct {
	bidsScored        *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	attributionRuns   *prometheus.CounterVec
	attributionCents  prometheus.Counter
	bonusRuns         prometheus.Counter
	bonusDistributed  prometheus.Counter
	rankPromotions    *prometheus.CounterVec
	scoringDuration   prometheus.Histogram
	attributionTiming prometheus.Histogram
}

// NewAllocationMetrics registers the engine metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	bidsScored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_bids_scored_total",
		Help: "Role bids passed through the assignment scorer.",
	}, []string{"slot_type"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_assignments_total",
		Help: "Accepted role assignments.",
	}, []string{"slot_type"})
	attributionRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_runs_total",
		Help: "Revenue attribution computations by outcome.",
	}, []string{"outcome"})
	attributionCents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attribution_cents_total",
		Help: "Total cents distributed by attribution runs.",
	})
	bonusRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_bonus_runs_total",
		Help: "Executed treasury bonus runs.",
	})
	bonusDistributed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_bonus_distributed_cents_total",
		Help: "Total cents paid out by bonus runs.",
	})
	rankPromotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rank_promotions_total",
		Help: "Rank promotions by target tier.",
	}, []string{"to_tier"})
	scoringDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_scoring_duration_seconds",
		Help:    "Duration of slot scoring passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	attributionTiming := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attribution_duration_seconds",
		Help:    "Duration of attribution computations in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(
		bidsScored,
		assignments,
		attributionRuns,
		attributionCents,
		bonusRuns,
		bonusDistributed,
		rankPromotions,
		scoringDuration,
		attributionTiming,
	)
	return &AllocationMetrics{
		bidsScored:        bidsScored,
		assignments:       assignments,
		attributionRuns:   attributionRuns,
		attributionCents:  attributionCents,
		bonusRuns:         bonusRuns,
		bonusDistributed:  bonusDistributed,
		rankPromotions:    rankPromotions,
		scoringDuration:   scoringDuration,
		attributionTiming: attributionTiming,
	}
}

// IncBidsScored increments the scored bid counter for the slot type.
func (m *AllocationMetrics) IncBidsScored(slotType string, count int) {
	if m == nil || m.bidsScored == nil || count <= 0 {
		return
	}
	m.bidsScored.WithLabelValues(normalizeLabel(slotType)).Add(float64(count))
}

// IncAssignments increments the accepted assignment counter.
func (m *AllocationMetrics) IncAssignments(slotType string) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(slotType)).Inc()
}

// IncAttributionRun records an attribution computation outcome.
func (m *AllocationMetrics) IncAttributionRun(outcome string) {
	if m == nil || m.attributionRuns == nil {
		return
	}
	m.attributionRuns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddAttributionCents records cents distributed by a completed attribution.
func (m *AllocationMetrics) AddAttributionCents(cents int64) {
	if m == nil || m.attributionCents == nil || cents <= 0 {
		return
	}
	m.attributionCents.Add(float64(cents))
}

// IncBonusRun records an executed bonus run and its total payout.
func (m *AllocationMetrics) IncBonusRun(distributedCents int64) {
	if m == nil || m.bonusRuns == nil {
		return
	}
	m.bonusRuns.Inc()
	if distributedCents > 0 && m.bonusDistributed != nil {
		m.bonusDistributed.Add(float64(distributedCents))
	}
}

// IncRankPromotion records a promotion to the named tier.
func (m *AllocationMetrics) IncRankPromotion(toTier string) {
	if m == nil || m.rankPromotions == nil {
		return
	}
	m.rankPromotions.WithLabelValues(normalizeLabel(toTier)).Inc()
}

// ObserveScoringDuration records a slot scoring pass duration.
func (m *AllocationMetrics) ObserveScoringDuration(d time.Duration) {
	if m == nil || m.scoringDuration == nil {
		return
	}
	m.scoringDuration.Observe(d.Seconds())
}

// ObserveAttributionDuration records an attribution computation duration.
func (m *AllocationMetrics) ObserveAttributionDuration(d time.Duration) {
	if m == nil || m.attributionTiming == nil {
		return
	}
	m.attributionTiming.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
