package attribution

import (
	"context"
	"testing"
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
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepository struct {
	rows map[uuid.UUID][]models.RevenueAttribution
}

func (s *stubRepository) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepository) CreateAttributions(_ context.Context, rows []models.RevenueAttribution) error {
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		s.rows[rows[i].ProjectID] = append(s.rows[rows[i].ProjectID], rows[i])
	}
	return nil
}

func (s *stubRepository) ListByProject(_ context.Context, projectID uuid.UUID) ([]models.RevenueAttribution, error) {
	return s.rows[projectID], nil
}

type stubAssignments struct {
	assignment.Repository
	committed map[uuid.UUID][]models.RoleAssignment
}

func (s *stubAssignments) WithTx(tx *gorm.DB) assignment.Repository { return s }

func (s *stubAssignments) ListCommittedByProject(_ context.Context, projectID uuid.UUID) ([]models.RoleAssignment, error) {
	return s.committed[projectID], nil
}

type stubSlots struct {
	opportunities.Repository
	slots map[uuid.UUID]*models.RoleSlot
}

func (s *stubSlots) WithTx(tx *gorm.DB) opportunities.Repository { return s }

func (s *stubSlots) FindSlot(_ context.Context, id uuid.UUID) (*models.RoleSlot, error) {
	if slot, ok := s.slots[id]; ok {
		return slot, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubProjects struct {
	projects.Repository
	projects map[uuid.UUID]*models.Project
}

func (s *stubProjects) WithTx(tx *gorm.DB) projects.Repository { return s }

func (s *stubProjects) FindProjectForUpdate(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProjects) MarkAttributed(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := s.projects[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.AttributedAt = &at
	return nil
}

type stubMembers struct {
	registry.Repository
	workload map[uuid.UUID][]models.WorkloadEntry
	revenue  map[uuid.UUID]int64
}

func (s *stubMembers) WithTx(tx *gorm.DB) registry.Repository { return s }

func (s *stubMembers) ListWorkloadEntriesByProject(_ context.Context, projectID uuid.UUID) ([]models.WorkloadEntry, error) {
	return s.workload[projectID], nil
}

func (s *stubMembers) AddCumulativeRevenue(_ context.Context, id uuid.UUID, deltaCents int64) error {
	s.revenue[id] += deltaCents
	return nil
}

type stubLedger struct {
	inflows []treasury.InflowInput
	run     *models.BonusRun
}

func (s *stubLedger) RecordInflowTx(_ context.Context, _ *gorm.DB, input treasury.InflowInput) (*models.TreasuryTransaction, error) {
	s.inflows = append(s.inflows, input)
	return &models.TreasuryTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubLedger) MaybeRunBonusTx(_ context.Context, _ *gorm.DB) (*models.BonusRun, error) {
	run := s.run
	s.run = nil
	return run, nil
}

type stubRanks struct {
	evaluated []uuid.UUID
}

func (s *stubRanks) EvaluateMembershipTx(_ context.Context, _ *gorm.DB, membershipID uuid.UUID) (*models.RankProgression, error) {
	s.evaluated = append(s.evaluated, membershipID)
	return nil, nil
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		LeadPercent:         30,
		PMPercent:           15,
		TreasuryPercent:     15,
		PercentToleranceBps: 10,
		MultiplierMode:      config.MultiplierModeCash,
		BonusBasis:          config.BonusBasisPostInflow,
	}
}

type fixture struct {
	repo        *stubRepository
	assignments *stubAssignments
	slots       *stubSlots
	projects    *stubProjects
	members     *stubMembers
	ledger      *stubLedger
	ranks       *stubRanks
	emitter     *stubEmitter
	svc         Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:        &stubRepository{rows: map[uuid.UUID][]models.RevenueAttribution{}},
		assignments: &stubAssignments{committed: map[uuid.UUID][]models.RoleAssignment{}},
		slots:       &stubSlots{slots: map[uuid.UUID]*models.RoleSlot{}},
		projects:    &stubProjects{projects: map[uuid.UUID]*models.Project{}},
		members:     &stubMembers{workload: map[uuid.UUID][]models.WorkloadEntry{}, revenue: map[uuid.UUID]int64{}},
		ledger:      &stubLedger{},
		ranks:       &stubRanks{},
		emitter:     &stubEmitter{},
	}
	svc, err := NewService(f.repo, f.assignments, f.slots, f.projects, f.members,
		f.ledger, f.ranks, f.emitter, metrics.NewAllocationMetrics(nil),
		stubTxRunner{}, testPolicy())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedProject(finalCents int64, paid bool) *models.Project {
	p := &models.Project{
		ID:               uuid.New(),
		Name:             "brand refresh",
		FinalAmountCents: finalCents,
	}
	if paid {
		now := time.Now().UTC()
		p.InvoicePaidAt = &now
	}
	f.projects.projects[p.ID] = p
	return p
}

func (f *fixture) seedAssignment(projectID uuid.UUID, slotType enums.RoleSlotType, hours float64) uuid.UUID {
	memberID := uuid.New()
	slot := &models.RoleSlot{ID: uuid.New(), SlotType: slotType, Filled: true}
	f.slots.slots[slot.ID] = slot
	committed := time.Now().UTC()
	f.assignments.committed[projectID] = append(f.assignments.committed[projectID], models.RoleAssignment{
		ID:            uuid.New(),
		OpportunityID: slot.OpportunityID,
		SlotID:        slot.ID,
		MembershipID:  memberID,
		Status:        enums.ProposalStatusCountersigned,
		CommittedAt:   &committed,
	})
	if hours > 0 {
		f.members.workload[projectID] = append(f.members.workload[projectID], models.WorkloadEntry{
			ID:           uuid.New(),
			MembershipID: memberID,
			ProjectID:    projectID,
			Slot:         slotType,
			StartDate:    committed,
			PlannedHours: hours,
		})
	}
	return memberID
}

func amountFor(rows []models.RevenueAttribution, memberID uuid.UUID) int64 {
	for _, row := range rows {
		if row.MembershipID != nil && *row.MembershipID == memberID {
			return row.AmountCents
		}
	}
	return -1
}

func treasuryLine(rows []models.RevenueAttribution) *models.RevenueAttribution {
	for i := range rows {
		if rows[i].MembershipID == nil {
			return &rows[i]
		}
	}
	return nil
}

func TestAttributeSplitsExactAmounts(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, true)
	lead := f.seedAssignment(project.ID, enums.RoleSlotLead, 10)
	pm := f.seedAssignment(project.ID, enums.RoleSlotPM, 5)
	core := f.seedAssignment(project.ID, enums.RoleSlotCore, 60)
	support := f.seedAssignment(project.ID, enums.RoleSlotSupport, 20)

	result, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("Attribute error: %v", err)
	}

	// 40% pool divided 60h/20h favors core 3:1.
	if got := amountFor(result.Rows, lead); got != 3_000 {
		t.Fatalf("lead amount = %d, want 3000", got)
	}
	if got := amountFor(result.Rows, pm); got != 1_500 {
		t.Fatalf("pm amount = %d, want 1500", got)
	}
	if got := amountFor(result.Rows, core); got != 3_000 {
		t.Fatalf("core amount = %d, want 3000", got)
	}
	if got := amountFor(result.Rows, support); got != 1_000 {
		t.Fatalf("support amount = %d, want 1000", got)
	}
	if result.TreasuryCents != 1_500 {
		t.Fatalf("treasury cents = %d, want 1500", result.TreasuryCents)
	}

	var total int64
	var totalBps int64
	for _, row := range result.Rows {
		total += row.AmountCents
		totalBps += row.PercentBps
	}
	if total != project.FinalAmountCents {
		t.Fatalf("amounts sum to %d, want %d", total, project.FinalAmountCents)
	}
	if totalBps != 10_000 {
		t.Fatalf("percent bps sum to %d, want 10000", totalBps)
	}
}

func TestAttributeMultiplierComesOutOfTreasury(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, true)
	lead := f.seedAssignment(project.ID, enums.RoleSlotLead, 0)
	pm := f.seedAssignment(project.ID, enums.RoleSlotPM, 0)
	core := f.seedAssignment(project.ID, enums.RoleSlotCore, 40)

	result, err := f.svc.Attribute(context.Background(), Input{
		ProjectID:   project.ID,
		Multipliers: map[uuid.UUID]float64{core: 1.1},
	})
	if err != nil {
		t.Fatalf("Attribute error: %v", err)
	}

	// Core holds the whole 40% pool; 4000 * 1.1 = 4400 and the extra 400
	// comes out of the treasury remainder: 10000 - 3000 - 1500 - 4400.
	if got := amountFor(result.Rows, lead); got != 3_000 {
		t.Fatalf("lead amount = %d, want 3000", got)
	}
	if got := amountFor(result.Rows, pm); got != 1_500 {
		t.Fatalf("pm amount = %d, want 1500", got)
	}
	if got := amountFor(result.Rows, core); got != 4_400 {
		t.Fatalf("core amount = %d, want 4400", got)
	}
	if result.TreasuryCents != 1_100 {
		t.Fatalf("treasury cents = %d, want 1100", result.TreasuryCents)
	}

	line := treasuryLine(result.Rows)
	if line == nil || line.AmountCents != 1_100 {
		t.Fatalf("expected treasury row of 1100, got %+v", line)
	}
}

func TestAttributeFailsClosedOnExcessMultiplier(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, true)
	lead := f.seedAssignment(project.ID, enums.RoleSlotLead, 0)
	f.seedAssignment(project.ID, enums.RoleSlotCore, 40)

	_, err := f.svc.Attribute(context.Background(), Input{
		ProjectID:   project.ID,
		Multipliers: map[uuid.UUID]float64{lead: 10},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAttributionImbalance) {
		t.Fatalf("expected attribution imbalance, got %v", err)
	}
	if len(f.repo.rows[project.ID]) != 0 {
		t.Fatalf("no rows must persist on failure, got %d", len(f.repo.rows[project.ID]))
	}
	if len(f.ledger.inflows) != 0 {
		t.Fatalf("no inflow must be recorded on failure")
	}
}

func TestAttributeRoundingRemainderGoesToTreasury(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(9_999, true)
	f.seedAssignment(project.ID, enums.RoleSlotLead, 0)
	f.seedAssignment(project.ID, enums.RoleSlotPM, 0)
	f.seedAssignment(project.ID, enums.RoleSlotCore, 40)

	result, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("Attribute error: %v", err)
	}

	var total int64
	for _, row := range result.Rows {
		total += row.AmountCents
	}
	if total != 9_999 {
		t.Fatalf("amounts sum to %d, want 9999", total)
	}
	// floor(2999.7) + floor(1499.85) + floor(3999.6) = 8497.
	if result.TreasuryCents != 9_999-8_497 {
		t.Fatalf("treasury cents = %d, want %d", result.TreasuryCents, 9_999-8_497)
	}
}

func TestSplitByHoursLeavesInputOrderAlone(t *testing.T) {
	recipients := []Recipient{
		{MembershipID: uuid.MustParse("ffffffff-0000-0000-0000-000000000000"), Slot: enums.RoleSlotCore, WorkloadHours: 30},
		{MembershipID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Slot: enums.RoleSlotCore, WorkloadHours: 10},
	}
	lines := splitByHours(recipients, 4_000)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if recipients[0].WorkloadHours != 30 || recipients[1].WorkloadHours != 10 {
		t.Fatalf("input slice was reordered: %+v", recipients)
	}
}

func TestAttributeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, true)
	f.seedAssignment(project.ID, enums.RoleSlotLead, 0)
	f.seedAssignment(project.ID, enums.RoleSlotCore, 40)

	first, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("first Attribute error: %v", err)
	}
	second, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("second Attribute error: %v", err)
	}

	if !second.AlreadyAttributed {
		t.Fatal("expected already-attributed result")
	}
	if len(second.Rows) != len(first.Rows) {
		t.Fatalf("expected existing rows back, got %d vs %d", len(second.Rows), len(first.Rows))
	}
	if len(f.ledger.inflows) != 1 {
		t.Fatalf("expected exactly one inflow, got %d", len(f.ledger.inflows))
	}
	if len(f.emitter.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(f.emitter.events))
	}
}

func TestAttributeRequiresPaidInvoice(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, false)
	f.seedAssignment(project.ID, enums.RoleSlotLead, 0)

	_, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestAttributeAdvancesRevenueAndRanks(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(10_000, true)
	lead := f.seedAssignment(project.ID, enums.RoleSlotLead, 0)
	core := f.seedAssignment(project.ID, enums.RoleSlotCore, 40)
	f.ledger.run = &models.BonusRun{ID: uuid.New()}

	result, err := f.svc.Attribute(context.Background(), Input{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("Attribute error: %v", err)
	}

	if f.members.revenue[lead] != 3_000 {
		t.Fatalf("lead cumulative revenue = %d, want 3000", f.members.revenue[lead])
	}
	if f.members.revenue[core] != 4_000 {
		t.Fatalf("core cumulative revenue = %d, want 4000", f.members.revenue[core])
	}
	if len(f.ranks.evaluated) != 2 {
		t.Fatalf("expected 2 rank evaluations, got %d", len(f.ranks.evaluated))
	}
	if f.projects.projects[project.ID].AttributedAt == nil {
		t.Fatal("expected project marked attributed")
	}
	if result.BonusRun == nil {
		t.Fatal("expected the triggered bonus run to surface in the result")
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.EventAttributionCompleted {
		t.Fatalf("expected attribution completed event, got %+v", f.emitter.events)
	}
	if len(f.ledger.inflows) != 1 || f.ledger.inflows[0].AmountCents != 3_000 {
		t.Fatalf("expected one 3000-cent inflow, got %+v", f.ledger.inflows)
	}
}
