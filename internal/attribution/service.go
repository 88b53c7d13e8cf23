package attribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/assignment"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/internal/projects"
	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/internal/treasury"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type treasuryLedger interface {
	RecordInflowTx(ctx context.Context, tx *gorm.DB, input treasury.InflowInput) (*models.TreasuryTransaction, error)
	MaybeRunBonusTx(ctx context.Context, tx *gorm.DB) (*models.BonusRun, error)
}

type rankEvaluator interface {
	EvaluateMembershipTx(ctx context.Context, tx *gorm.DB, membershipID uuid.UUID) (*models.RankProgression, error)
}

// Result is the outcome of attributing one paid project. AlreadyAttributed
// marks a repeat invocation that returned the existing rows untouched.
type Result struct {
	Rows              []models.RevenueAttribution `json:"rows"`
	TreasuryCents     int64                       `json:"treasuryCents"`
	BonusRun          *models.BonusRun            `json:"bonusRun,omitempty"`
	AlreadyAttributed bool                        `json:"alreadyAttributed"`
}

// Input carries the attribution request. Multipliers override the default
// 1.0 performance multiplier per membership.
type Input struct {
	ProjectID   uuid.UUID
	Multipliers map[uuid.UUID]float64
}

// Service turns a paid project into exact per-member revenue shares, feeds
// the treasury, and advances cumulative revenue and ranks, all in one
// transaction.
type Service interface {
	Attribute(ctx context.Context, input Input) (*Result, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.RevenueAttribution, error)
}

type service struct {
	repo        Repository
	assignments assignment.Repository
	slots       opportunities.Repository
	projects    projects.Repository
	members     registry.Repository
	ledger      treasuryLedger
	ranks       rankEvaluator
	events      eventEmitter
	stats       *metrics.AllocationMetrics
	tx          txRunner
	policy      config.PolicyConfig
	calc        calculator
	now         func() time.Time
}

// NewService wires the attribution service.
func NewService(
	repo Repository,
	assignments assignment.Repository,
	slots opportunities.Repository,
	projectRepo projects.Repository,
	members registry.Repository,
	ledger treasuryLedger,
	ranks rankEvaluator,
	events eventEmitter,
	stats *metrics.AllocationMetrics,
	tx txRunner,
	policy config.PolicyConfig,
) (Service, error) {
	if repo == nil || assignments == nil || slots == nil || projectRepo == nil || members == nil {
		return nil, fmt.Errorf("attribution repositories required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("treasury ledger required")
	}
	if ranks == nil {
		return nil, fmt.Errorf("rank evaluator required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		assignments: assignments,
		slots:       slots,
		projects:    projectRepo,
		members:     members,
		ledger:      ledger,
		ranks:       ranks,
		events:      events,
		stats:       stats,
		tx:          tx,
		policy:      policy,
		calc:        calculator{policy: policy},
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Attribute(ctx context.Context, input Input) (*Result, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	started := time.Now()

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.attributeTx(ctx, tx, input)
		return err
	})
	s.stats.ObserveAttributionDuration(time.Since(started))
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeAttributionImbalance) {
			s.stats.IncAttributionRun("imbalance")
		} else {
			s.stats.IncAttributionRun("error")
		}
		return nil, err
	}
	if result.AlreadyAttributed {
		s.stats.IncAttributionRun("already_attributed")
	} else {
		s.stats.IncAttributionRun("completed")
	}
	return result, nil
}

func (s *service) attributeTx(ctx context.Context, tx *gorm.DB, input Input) (*Result, error) {
	projectRepo := s.projects.WithTx(tx)

	project, err := projectRepo.FindProjectForUpdate(ctx, input.ProjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}

	// Re-invocation on an attributed project is answered with the rows that
	// already exist, never a second distribution.
	if project.AttributedAt != nil {
		rows, err := s.repo.WithTx(tx).ListByProject(ctx, project.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing attribution")
		}
		return &Result{Rows: rows, AlreadyAttributed: true}, nil
	}
	if project.InvoicePaidAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "project invoice is not paid")
	}

	recipients, err := s.collectRecipients(ctx, tx, project.ID, input.Multipliers)
	if err != nil {
		return nil, err
	}

	lines, err := s.calc.Split(project.FinalAmountCents, recipients)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows := make([]models.RevenueAttribution, 0, len(lines))
	var treasuryCents, memberCents int64
	for _, line := range lines {
		rows = append(rows, models.RevenueAttribution{
			ProjectID:             project.ID,
			MembershipID:          line.MembershipID,
			Slot:                  line.Slot,
			PercentBps:            line.PercentBps,
			PerformanceMultiplier: line.Multiplier,
			AmountCents:           line.AmountCents,
			Status:                enums.AttributionStatusApproved,
		})
		if line.MembershipID == nil {
			treasuryCents = line.AmountCents
		} else {
			memberCents += line.AmountCents
		}
	}
	if err := s.repo.WithTx(tx).CreateAttributions(ctx, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist attribution rows")
	}

	result := &Result{Rows: rows, TreasuryCents: treasuryCents}

	projectID := project.ID
	inflow := treasury.InflowInput{
		AmountCents: treasuryCents,
		ProjectID:   &projectID,
		Memo:        fmt.Sprintf("attribution %s", project.Name),
	}
	if s.policy.BonusBasis == config.BonusBasisPreInflow {
		if result.BonusRun, err = s.ledger.MaybeRunBonusTx(ctx, tx); err != nil {
			return nil, err
		}
	}
	if treasuryCents > 0 {
		if _, err := s.ledger.RecordInflowTx(ctx, tx, inflow); err != nil {
			return nil, err
		}
	}
	if s.policy.BonusBasis != config.BonusBasisPreInflow {
		if result.BonusRun, err = s.ledger.MaybeRunBonusTx(ctx, tx); err != nil {
			return nil, err
		}
	}

	members := s.members.WithTx(tx)
	for _, row := range rows {
		if row.MembershipID == nil || row.AmountCents == 0 {
			continue
		}
		if err := members.AddCumulativeRevenue(ctx, *row.MembershipID, row.AmountCents); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance cumulative revenue")
		}
		if _, err := s.ranks.EvaluateMembershipTx(ctx, tx, *row.MembershipID); err != nil {
			return nil, err
		}
	}

	if err := projectRepo.MarkAttributed(ctx, project.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark project attributed")
	}

	if err := s.emitCompleted(ctx, tx, project, rows, treasuryCents, now); err != nil {
		return nil, err
	}
	s.stats.AddAttributionCents(memberCents)
	return result, nil
}

// collectRecipients resolves the project's committed assignments to slot
// types and workload hours. Overhead slots draw from the treasury, not from
// direct attribution, so they are left out here.
func (s *service) collectRecipients(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, multipliers map[uuid.UUID]float64) ([]Recipient, error) {
	assignments, err := s.assignments.WithTx(tx).ListCommittedByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list committed assignments")
	}
	if len(assignments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "project has no committed assignments")
	}

	entries, err := s.members.WithTx(tx).ListWorkloadEntriesByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list workload entries")
	}
	hoursByMember := map[uuid.UUID]float64{}
	for _, entry := range entries {
		hours := entry.PlannedHours
		if entry.ActualHours != nil {
			hours = *entry.ActualHours
		}
		hoursByMember[entry.MembershipID] += hours
	}

	slots := s.slots.WithTx(tx)
	recipients := make([]Recipient, 0, len(assignments))
	for _, assigned := range assignments {
		slot, err := slots.FindSlot(ctx, assigned.SlotID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve assigned slot")
		}
		if slot.SlotType == enums.RoleSlotOverhead {
			continue
		}
		multiplier := 1.0
		if override, ok := multipliers[assigned.MembershipID]; ok && override > 0 {
			multiplier = override
		}
		recipients = append(recipients, Recipient{
			MembershipID:  assigned.MembershipID,
			Slot:          slot.SlotType,
			WorkloadHours: hoursByMember[assigned.MembershipID],
			Multiplier:    multiplier,
		})
	}
	return recipients, nil
}

func (s *service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.RevenueAttribution, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	rows, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attribution rows")
	}
	return rows, nil
}

func (s *service) emitCompleted(ctx context.Context, tx *gorm.DB, project *models.Project, rows []models.RevenueAttribution, treasuryCents int64, at time.Time) error {
	lines := make([]payloads.AttributionLineEvent, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, payloads.AttributionLineEvent{
			MembershipID: row.MembershipID,
			SlotType:     row.Slot,
			PercentBps:   int(row.PercentBps),
			AmountCents:  row.AmountCents,
		})
	}
	event := payloads.AttributionCompletedEvent{
		ProjectID:        project.ID,
		FinalAmountCents: project.FinalAmountCents,
		TreasuryCents:    treasuryCents,
		Lines:            lines,
		AttributedAt:     at,
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAttributionCompleted,
		AggregateType: enums.AggregateProject,
		AggregateID:   project.ID,
		Data:          event,
		OccurredAt:    at,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue attribution completed event")
	}
	return nil
}
