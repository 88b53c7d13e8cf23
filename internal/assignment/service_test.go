package assignment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubAssignmentRepo struct {
	assignments map[uuid.UUID]*models.RoleAssignment
}

func newStubAssignmentRepo() *stubAssignmentRepo {
	return &stubAssignmentRepo{assignments: map[uuid.UUID]*models.RoleAssignment{}}
}

func (s *stubAssignmentRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAssignmentRepo) CreateAssignment(_ context.Context, a *models.RoleAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	copied := *a
	s.assignments[a.ID] = &copied
	return nil
}

func (s *stubAssignmentRepo) FindAssignment(_ context.Context, id uuid.UUID) (*models.RoleAssignment, error) {
	if a, ok := s.assignments[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAssignmentRepo) FindAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleAssignment, error) {
	return s.FindAssignment(ctx, id)
}

func (s *stubAssignmentRepo) ListAssignmentsByOpportunity(_ context.Context, opportunityID uuid.UUID) ([]models.RoleAssignment, error) {
	rows := []models.RoleAssignment{}
	for _, a := range s.assignments {
		if a.OpportunityID == opportunityID {
			rows = append(rows, *a)
		}
	}
	return rows, nil
}

func (s *stubAssignmentRepo) FindPendingProposalForSlot(_ context.Context, slotID uuid.UUID) (*models.RoleAssignment, error) {
	for _, a := range s.assignments {
		if a.SlotID == slotID && a.Status == enums.ProposalStatusPending {
			copied := *a
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubAssignmentRepo) ListExpiredPendingProposals(_ context.Context, asOf time.Time, limit int) ([]models.RoleAssignment, error) {
	rows := []models.RoleAssignment{}
	for _, a := range s.assignments {
		if a.Status == enums.ProposalStatusPending && a.ExpiresAt.Before(asOf) {
			rows = append(rows, *a)
			if len(rows) == limit {
				break
			}
		}
	}
	return rows, nil
}

func (s *stubAssignmentRepo) SaveAssignment(_ context.Context, a *models.RoleAssignment) error {
	copied := *a
	s.assignments[a.ID] = &copied
	return nil
}

func (s *stubAssignmentRepo) ListCommittedByProject(_ context.Context, _ uuid.UUID) ([]models.RoleAssignment, error) {
	return nil, nil
}

type stubOppRepo struct {
	opportunities map[uuid.UUID]*models.ProjectOpportunity
	slots         map[uuid.UUID]*models.RoleSlot
	bids          map[uuid.UUID]*models.RoleBid
}

func newStubOppRepo() *stubOppRepo {
	return &stubOppRepo{
		opportunities: map[uuid.UUID]*models.ProjectOpportunity{},
		slots:         map[uuid.UUID]*models.RoleSlot{},
		bids:          map[uuid.UUID]*models.RoleBid{},
	}
}

func (s *stubOppRepo) WithTx(tx *gorm.DB) opportunities.Repository { return s }

func (s *stubOppRepo) CreateOpportunity(_ context.Context, o *models.ProjectOpportunity) error {
	s.opportunities[o.ID] = o
	return nil
}

func (s *stubOppRepo) FindOpportunity(_ context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	if o, ok := s.opportunities[id]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOppRepo) FindOpportunityForUpdate(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	return s.FindOpportunity(ctx, id)
}

func (s *stubOppRepo) ListOpportunities(_ context.Context, _ *enums.OpportunityStatus, _ *pagination.Cursor, _ int) ([]models.ProjectOpportunity, error) {
	return nil, nil
}

func (s *stubOppRepo) UpdateOpportunityStatus(_ context.Context, id uuid.UUID, status enums.OpportunityStatus) error {
	o, ok := s.opportunities[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	return nil
}

func (s *stubOppRepo) CreateSlots(_ context.Context, slots []models.RoleSlot) error {
	for i := range slots {
		copied := slots[i]
		s.slots[copied.ID] = &copied
	}
	return nil
}

func (s *stubOppRepo) FindSlot(_ context.Context, id uuid.UUID) (*models.RoleSlot, error) {
	if slot, ok := s.slots[id]; ok {
		copied := *slot
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOppRepo) ListSlots(_ context.Context, opportunityID uuid.UUID) ([]models.RoleSlot, error) {
	rows := []models.RoleSlot{}
	for _, slot := range s.slots {
		if slot.OpportunityID == opportunityID {
			rows = append(rows, *slot)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (s *stubOppRepo) SetSlotFilled(_ context.Context, id uuid.UUID, filled bool) error {
	slot, ok := s.slots[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	slot.Filled = filled
	return nil
}

func (s *stubOppRepo) CountUnfilledSlots(_ context.Context, opportunityID uuid.UUID) (int64, error) {
	var count int64
	for _, slot := range s.slots {
		if slot.OpportunityID == opportunityID && !slot.Filled {
			count++
		}
	}
	return count, nil
}

func (s *stubOppRepo) CreateBid(_ context.Context, bid *models.RoleBid) error {
	s.bids[bid.ID] = bid
	return nil
}

func (s *stubOppRepo) FindBid(_ context.Context, id uuid.UUID) (*models.RoleBid, error) {
	if bid, ok := s.bids[id]; ok {
		copied := *bid
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOppRepo) FindBidForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleBid, error) {
	return s.FindBid(ctx, id)
}

func (s *stubOppRepo) FindPendingBidByMembership(_ context.Context, _, _ uuid.UUID) (*models.RoleBid, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOppRepo) ListBids(_ context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	return s.ListPendingBids(context.Background(), opportunityID)
}

func (s *stubOppRepo) ListPendingBids(_ context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	rows := []models.RoleBid{}
	for _, bid := range s.bids {
		if bid.OpportunityID == opportunityID && bid.Status == enums.BidStatusPending {
			rows = append(rows, *bid)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SubmittedAt.Before(rows[j].SubmittedAt) })
	return rows, nil
}

func (s *stubOppRepo) SaveBid(_ context.Context, bid *models.RoleBid) error {
	copied := *bid
	s.bids[bid.ID] = &copied
	return nil
}

type stubSignalReader struct {
	memberships map[uuid.UUID]*models.Membership
	skills      map[uuid.UUID]map[string]*models.Skill
	avail       map[uuid.UUID]*models.Availability
	consistency map[uuid.UUID]*models.ConsistencyMetrics
}

func newStubSignalReader() *stubSignalReader {
	return &stubSignalReader{
		memberships: map[uuid.UUID]*models.Membership{},
		skills:      map[uuid.UUID]map[string]*models.Skill{},
		avail:       map[uuid.UUID]*models.Availability{},
		consistency: map[uuid.UUID]*models.ConsistencyMetrics{},
	}
}

func (s *stubSignalReader) FindMembership(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	if m, ok := s.memberships[id]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSignalReader) FindSkill(_ context.Context, membershipID uuid.UUID, category string) (*models.Skill, error) {
	if skills, ok := s.skills[membershipID]; ok {
		if skill, ok := skills[category]; ok {
			return skill, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSignalReader) FindAvailability(_ context.Context, membershipID uuid.UUID) (*models.Availability, error) {
	if a, ok := s.avail[membershipID]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSignalReader) FindConsistency(_ context.Context, membershipID uuid.UUID) (*models.ConsistencyMetrics, error) {
	if m, ok := s.consistency[membershipID]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	repo    *stubAssignmentRepo
	opps    *stubOppRepo
	signals *stubSignalReader
	emitter *stubEmitter
	svc     Service
}

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		WeightSkillMatch:    0.30,
		WeightWorkload:      0.20,
		WeightConsistency:   0.25,
		WeightRankFit:       0.15,
		WeightPreferredRole: 0.10,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newStubAssignmentRepo(),
		opps:    newStubOppRepo(),
		signals: newStubSignalReader(),
		emitter: &stubEmitter{},
	}
	svc, err := NewService(f.repo, f.opps, f.signals, f.emitter,
		metrics.NewAllocationMetrics(nil), stubTxRunner{}, testPolicy())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedOpportunity(council bool) *models.ProjectOpportunity {
	o := &models.ProjectOpportunity{
		ID:                      uuid.New(),
		ProjectID:               uuid.New(),
		Status:                  enums.OpportunityStatusBidding,
		RequiresCouncilApproval: council,
		BiddingDeadline:         time.Now().UTC().Add(24 * time.Hour),
	}
	f.opps.opportunities[o.ID] = o
	return o
}

func (f *fixture) seedSlot(opportunityID uuid.UUID, slotType enums.RoleSlotType, category string) *models.RoleSlot {
	slot := &models.RoleSlot{ID: uuid.New(), OpportunityID: opportunityID, SlotType: slotType, Category: category}
	f.opps.slots[slot.ID] = slot
	return slot
}

func (f *fixture) seedBidder(tier enums.Tier, category string, proficiency int, composite float64) *models.Membership {
	m := &models.Membership{ID: uuid.New(), DisplayName: "member", Tier: tier}
	f.signals.memberships[m.ID] = m
	if proficiency > 0 {
		f.signals.skills[m.ID] = map[string]*models.Skill{
			category: {ID: uuid.New(), MembershipID: m.ID, Category: category, Proficiency: proficiency},
		}
	}
	f.signals.avail[m.ID] = &models.Availability{
		MembershipID: m.ID, Status: enums.AvailabilityStatusAvailable, MaxConcurrent: 2,
	}
	f.signals.consistency[m.ID] = &models.ConsistencyMetrics{MembershipID: m.ID, CompositeScore: composite}
	return m
}

func (f *fixture) seedBid(opportunityID, membershipID uuid.UUID, preferred enums.RoleSlotType, submittedAt time.Time) *models.RoleBid {
	bid := &models.RoleBid{
		ID:            uuid.New(),
		OpportunityID: opportunityID,
		MembershipID:  membershipID,
		PreferredRole: preferred,
		Status:        enums.BidStatusPending,
		SubmittedAt:   submittedAt,
	}
	f.opps.bids[bid.ID] = bid
	return bid
}

func TestScoreSlotRanksStrongerBidFirst(t *testing.T) {
	f := newFixture(t)
	opp := f.seedOpportunity(false)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")

	strong := f.seedBidder(enums.TierSeniorPartner, "backend", 5, 0.9)
	weak := f.seedBidder(enums.TierContributor, "backend", 2, 0.3)
	now := time.Now().UTC()
	strongBid := f.seedBid(opp.ID, strong.ID, enums.RoleSlotLead, now)
	f.seedBid(opp.ID, weak.ID, enums.RoleSlotLead, now.Add(-time.Hour))

	scored, err := f.svc.ScoreSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("ScoreSlot error: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored bids, got %d", len(scored))
	}
	if scored[0].BidID != strongBid.ID {
		t.Fatalf("expected stronger bid first, got %v", scored[0].BidID)
	}
	if scored[0].TotalScore <= scored[1].TotalScore {
		t.Fatalf("expected strictly higher total, got %v vs %v", scored[0].TotalScore, scored[1].TotalScore)
	}
}

func TestRankTieBreaksOnConsistencyThenLoadThenTime(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	a := ScoredBid{BidID: uuid.New(), TotalScore: 0.8, ConsistencyScore: 0.9, ActiveProjects: 2, SubmittedAt: base}
	b := ScoredBid{BidID: uuid.New(), TotalScore: 0.8, ConsistencyScore: 0.7, ActiveProjects: 0, SubmittedAt: base}
	c := ScoredBid{BidID: uuid.New(), TotalScore: 0.8, ConsistencyScore: 0.7, ActiveProjects: 0, SubmittedAt: base.Add(-time.Minute)}

	scored := []ScoredBid{b, c, a}
	Rank(scored)

	if scored[0].BidID != a.BidID {
		t.Fatalf("expected highest consistency first")
	}
	if scored[1].BidID != c.BidID {
		t.Fatalf("expected earlier submission to beat equal consistency and load")
	}
}

func TestAssignSlotCommitsWinnerAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	opp := f.seedOpportunity(false)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")
	member := f.seedBidder(enums.TierPartner, "backend", 4, 0.8)
	bid := f.seedBid(opp.ID, member.ID, enums.RoleSlotLead, time.Now().UTC())

	assignment, err := f.svc.AssignSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("AssignSlot error: %v", err)
	}
	if assignment.Status != enums.ProposalStatusCountersigned || assignment.CommittedAt == nil {
		t.Fatalf("expected committed assignment, got %+v", assignment)
	}
	if assignment.BidID != bid.ID {
		t.Fatalf("expected winning bid %v, got %v", bid.ID, assignment.BidID)
	}
	if f.opps.bids[bid.ID].Status != enums.BidStatusAccepted {
		t.Fatalf("expected accepted bid, got %q", f.opps.bids[bid.ID].Status)
	}
	if !f.opps.slots[slot.ID].Filled {
		t.Fatal("expected slot filled")
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.EventRoleAssigned {
		t.Fatalf("expected one role assigned event, got %+v", f.emitter.events)
	}
}

func TestAssignSlotSurfacesEmitFailure(t *testing.T) {
	f := newFixture(t)
	f.emitter.err = errors.New("outbox unavailable")
	opp := f.seedOpportunity(false)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")
	member := f.seedBidder(enums.TierPartner, "backend", 4, 0.8)
	f.seedBid(opp.ID, member.ID, enums.RoleSlotLead, time.Now().UTC())

	if _, err := f.svc.AssignSlot(context.Background(), slot.ID); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestAssignSlotCouncilGatedLeavesBidPending(t *testing.T) {
	f := newFixture(t)
	opp := f.seedOpportunity(true)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")
	member := f.seedBidder(enums.TierPartner, "backend", 4, 0.8)
	bid := f.seedBid(opp.ID, member.ID, enums.RoleSlotLead, time.Now().UTC())

	assignment, err := f.svc.AssignSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("AssignSlot error: %v", err)
	}
	if assignment.Status != enums.ProposalStatusPending {
		t.Fatalf("expected pending proposal, got %q", assignment.Status)
	}
	if f.opps.bids[bid.ID].Status != enums.BidStatusPending {
		t.Fatalf("expected bid to stay pending, got %q", f.opps.bids[bid.ID].Status)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events before countersign, got %d", len(f.emitter.events))
	}

	// A second run against the same slot must not stack proposals.
	if _, err := f.svc.AssignSlot(context.Background(), slot.ID); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on duplicate proposal, got %v", err)
	}
}

func TestCountersignProposalCommits(t *testing.T) {
	f := newFixture(t)
	opp := f.seedOpportunity(true)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")
	member := f.seedBidder(enums.TierPartner, "backend", 4, 0.8)
	f.seedBid(opp.ID, member.ID, enums.RoleSlotLead, time.Now().UTC())

	proposal, err := f.svc.AssignSlot(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("AssignSlot error: %v", err)
	}

	council := &models.Membership{ID: uuid.New(), DisplayName: "council", Tier: enums.TierPrincipal, IsCouncil: true}
	f.signals.memberships[council.ID] = council
	outsider := f.seedBidder(enums.TierContributor, "", 0, 0)

	if _, err := f.svc.CountersignProposal(context.Background(), proposal.ID, outsider.ID); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for non-council, got %v", err)
	}

	committed, err := f.svc.CountersignProposal(context.Background(), proposal.ID, council.ID)
	if err != nil {
		t.Fatalf("CountersignProposal error: %v", err)
	}
	if committed.Status != enums.ProposalStatusCountersigned {
		t.Fatalf("expected countersigned, got %q", committed.Status)
	}
	if committed.CountersignedByID == nil || *committed.CountersignedByID != council.ID {
		t.Fatalf("expected council recorded, got %+v", committed.CountersignedByID)
	}
	if !f.opps.slots[slot.ID].Filled {
		t.Fatal("expected slot filled after countersign")
	}
	if len(f.emitter.events) != 1 {
		t.Fatalf("expected role assigned event after countersign, got %d", len(f.emitter.events))
	}
}

func TestExpireProposalsReopensSlot(t *testing.T) {
	f := newFixture(t)
	opp := f.seedOpportunity(true)
	opp.BiddingDeadline = time.Now().UTC().Add(-time.Hour)
	slot := f.seedSlot(opp.ID, enums.RoleSlotLead, "backend")
	member := f.seedBidder(enums.TierPartner, "backend", 4, 0.8)
	f.seedBid(opp.ID, member.ID, enums.RoleSlotLead, time.Now().UTC().Add(-2*time.Hour))

	proposal := &models.RoleAssignment{
		ID:            uuid.New(),
		OpportunityID: opp.ID,
		SlotID:        slot.ID,
		BidID:         uuid.New(),
		MembershipID:  member.ID,
		Status:        enums.ProposalStatusPending,
		ExpiresAt:     time.Now().UTC().Add(-time.Minute),
	}
	f.repo.assignments[proposal.ID] = proposal

	expired, err := f.svc.ExpireProposals(context.Background())
	if err != nil {
		t.Fatalf("ExpireProposals error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired proposal, got %d", expired)
	}
	if f.repo.assignments[proposal.ID].Status != enums.ProposalStatusExpired {
		t.Fatalf("expected expired status, got %q", f.repo.assignments[proposal.ID].Status)
	}
	if f.opps.slots[slot.ID].Filled {
		t.Fatal("slot must stay open after an expired proposal")
	}
}
