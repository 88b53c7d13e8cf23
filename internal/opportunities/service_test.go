package opportunities

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
	pkgerrors "github.com/guildworks/guildworks-backend/pkg/errors"
	"github.com/guildworks/guildworks-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepository struct {
	opportunities map[uuid.UUID]*models.ProjectOpportunity
	slots         map[uuid.UUID]*models.RoleSlot
	bids          map[uuid.UUID]*models.RoleBid
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		opportunities: map[uuid.UUID]*models.ProjectOpportunity{},
		slots:         map[uuid.UUID]*models.RoleSlot{},
		bids:          map[uuid.UUID]*models.RoleBid{},
	}
}

func (s *stubRepository) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepository) CreateOpportunity(_ context.Context, o *models.ProjectOpportunity) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	s.opportunities[o.ID] = o
	return nil
}

func (s *stubRepository) FindOpportunity(_ context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	if o, ok := s.opportunities[id]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepository) FindOpportunityForUpdate(ctx context.Context, id uuid.UUID) (*models.ProjectOpportunity, error) {
	return s.FindOpportunity(ctx, id)
}

func (s *stubRepository) ListOpportunities(_ context.Context, status *enums.OpportunityStatus, _ *pagination.Cursor, limit int) ([]models.ProjectOpportunity, error) {
	rows := []models.ProjectOpportunity{}
	for _, o := range s.opportunities {
		if status != nil && o.Status != *status {
			continue
		}
		rows = append(rows, *o)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (s *stubRepository) UpdateOpportunityStatus(_ context.Context, id uuid.UUID, status enums.OpportunityStatus) error {
	o, ok := s.opportunities[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	return nil
}

func (s *stubRepository) CreateSlots(_ context.Context, slots []models.RoleSlot) error {
	for i := range slots {
		if slots[i].ID == uuid.Nil {
			slots[i].ID = uuid.New()
		}
		slots[i].CreatedAt = time.Now().UTC()
		copied := slots[i]
		s.slots[copied.ID] = &copied
	}
	return nil
}

func (s *stubRepository) FindSlot(_ context.Context, id uuid.UUID) (*models.RoleSlot, error) {
	if slot, ok := s.slots[id]; ok {
		copied := *slot
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepository) ListSlots(_ context.Context, opportunityID uuid.UUID) ([]models.RoleSlot, error) {
	rows := []models.RoleSlot{}
	for _, slot := range s.slots {
		if slot.OpportunityID == opportunityID {
			rows = append(rows, *slot)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (s *stubRepository) SetSlotFilled(_ context.Context, id uuid.UUID, filled bool) error {
	slot, ok := s.slots[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	slot.Filled = filled
	return nil
}

func (s *stubRepository) CountUnfilledSlots(_ context.Context, opportunityID uuid.UUID) (int64, error) {
	var count int64
	for _, slot := range s.slots {
		if slot.OpportunityID == opportunityID && !slot.Filled {
			count++
		}
	}
	return count, nil
}

func (s *stubRepository) CreateBid(_ context.Context, bid *models.RoleBid) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	bid.CreatedAt = time.Now().UTC()
	s.bids[bid.ID] = bid
	return nil
}

func (s *stubRepository) FindBid(_ context.Context, id uuid.UUID) (*models.RoleBid, error) {
	if bid, ok := s.bids[id]; ok {
		copied := *bid
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepository) FindBidForUpdate(ctx context.Context, id uuid.UUID) (*models.RoleBid, error) {
	return s.FindBid(ctx, id)
}

func (s *stubRepository) FindPendingBidByMembership(_ context.Context, opportunityID, membershipID uuid.UUID) (*models.RoleBid, error) {
	for _, bid := range s.bids {
		if bid.OpportunityID == opportunityID && bid.MembershipID == membershipID && bid.Status == enums.BidStatusPending {
			copied := *bid
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepository) ListBids(_ context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	rows := []models.RoleBid{}
	for _, bid := range s.bids {
		if bid.OpportunityID == opportunityID {
			rows = append(rows, *bid)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SubmittedAt.Before(rows[j].SubmittedAt) })
	return rows, nil
}

func (s *stubRepository) ListPendingBids(_ context.Context, opportunityID uuid.UUID) ([]models.RoleBid, error) {
	rows := []models.RoleBid{}
	for _, bid := range s.bids {
		if bid.OpportunityID == opportunityID && bid.Status == enums.BidStatusPending {
			rows = append(rows, *bid)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SubmittedAt.Before(rows[j].SubmittedAt) })
	return rows, nil
}

func (s *stubRepository) SaveBid(_ context.Context, bid *models.RoleBid) error {
	copied := *bid
	s.bids[bid.ID] = &copied
	return nil
}

type stubMembershipFinder struct {
	memberships map[uuid.UUID]*models.Membership
}

func (s *stubMembershipFinder) FindMembership(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	if m, ok := s.memberships[id]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubProjectFinder struct {
	projects map[uuid.UUID]*models.Project
}

func (s *stubProjectFinder) FindProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fixture struct {
	repo        *stubRepository
	memberships *stubMembershipFinder
	projects    *stubProjectFinder
	svc         Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:        newStubRepository(),
		memberships: &stubMembershipFinder{memberships: map[uuid.UUID]*models.Membership{}},
		projects:    &stubProjectFinder{projects: map[uuid.UUID]*models.Project{}},
	}
	svc, err := NewService(f.repo, f.memberships, f.projects, stubTxRunner{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedProject() *models.Project {
	p := &models.Project{ID: uuid.New(), Name: "atlas", FinalAmountCents: 1_000_000}
	f.projects.projects[p.ID] = p
	return p
}

func (f *fixture) seedMembership(tier enums.Tier) *models.Membership {
	m := &models.Membership{ID: uuid.New(), DisplayName: "member", Tier: tier}
	f.memberships.memberships[m.ID] = m
	return m
}

func (f *fixture) publishBidding(t *testing.T, minTier *int, slots ...SlotInput) *OpportunityDetail {
	t.Helper()
	project := f.seedProject()
	detail, err := f.svc.PublishOpportunity(context.Background(), PublishOpportunityInput{
		ProjectID:       project.ID,
		MinimumRankTier: minTier,
		BiddingDeadline: time.Now().UTC().Add(48 * time.Hour),
		Slots:           slots,
	})
	if err != nil {
		t.Fatalf("PublishOpportunity error: %v", err)
	}
	if _, err := f.svc.OpenBidding(context.Background(), detail.Opportunity.ID); err != nil {
		t.Fatalf("OpenBidding error: %v", err)
	}
	detail.Opportunity.Status = enums.OpportunityStatusBidding
	return detail
}

func intPtr(v int) *int { return &v }

func rolePtr(r enums.RoleSlotType) *enums.RoleSlotType { return &r }

func TestPublishOpportunityCreatesSlots(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject()

	detail, err := f.svc.PublishOpportunity(context.Background(), PublishOpportunityInput{
		ProjectID:       project.ID,
		BiddingDeadline: time.Now().UTC().Add(24 * time.Hour),
		Slots: []SlotInput{
			{SlotType: enums.RoleSlotLead, Category: "backend"},
			{SlotType: enums.RoleSlotCore, Category: "backend"},
		},
	})
	if err != nil {
		t.Fatalf("PublishOpportunity error: %v", err)
	}
	if detail.Opportunity.Status != enums.OpportunityStatusOpen {
		t.Fatalf("expected open status, got %q", detail.Opportunity.Status)
	}
	if len(detail.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(detail.Slots))
	}
}

func TestPublishOpportunityRejectsPastDeadline(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject()

	_, err := f.svc.PublishOpportunity(context.Background(), PublishOpportunityInput{
		ProjectID:       project.ID,
		BiddingDeadline: time.Now().UTC().Add(-time.Hour),
		Slots:           []SlotInput{{SlotType: enums.RoleSlotLead, Category: "backend"}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitBidEnforcesMinimumTier(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, intPtr(3), SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierContributor)

	_, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeIneligibleRank) {
		t.Fatalf("expected ineligible rank, got %v", err)
	}
}

func TestSubmitBidOpensBiddingOnOpenOpportunity(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject()
	detail, err := f.svc.PublishOpportunity(context.Background(), PublishOpportunityInput{
		ProjectID:       project.ID,
		BiddingDeadline: time.Now().UTC().Add(48 * time.Hour),
		Slots:           []SlotInput{{SlotType: enums.RoleSlotLead, Category: "backend"}},
	})
	if err != nil {
		t.Fatalf("PublishOpportunity error: %v", err)
	}
	member := f.seedMembership(enums.TierContributor)

	bid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}
	if bid.Status != enums.BidStatusPending {
		t.Fatalf("expected pending bid, got %q", bid.Status)
	}
	if got := f.repo.opportunities[detail.Opportunity.ID].Status; got != enums.OpportunityStatusBidding {
		t.Fatalf("expected first bid to open bidding, got %q", got)
	}
}

func TestSubmitBidRejectsSecondPending(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil, SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierContributor)

	input := SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	}
	if _, err := f.svc.SubmitBid(context.Background(), input); err != nil {
		t.Fatalf("first SubmitBid error: %v", err)
	}
	_, err := f.svc.SubmitBid(context.Background(), input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSubmitBidAfterDeadlineRejected(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil, SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierContributor)

	f.repo.opportunities[detail.Opportunity.ID].BiddingDeadline = time.Now().UTC().Add(-time.Minute)

	_, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestWithdrawBidOnlyByOwner(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil, SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierContributor)
	other := f.seedMembership(enums.TierContributor)

	bid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}

	if _, err := f.svc.WithdrawBid(context.Background(), bid.ID, other.ID); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	withdrawn, err := f.svc.WithdrawBid(context.Background(), bid.ID, member.ID)
	if err != nil {
		t.Fatalf("WithdrawBid error: %v", err)
	}
	if withdrawn.Status != enums.BidStatusWithdrawn {
		t.Fatalf("expected withdrawn, got %q", withdrawn.Status)
	}
}

func TestAcceptBidFillsSlotAndAdvancesOpportunity(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil, SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierPartner)

	bid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}

	result, err := f.svc.AcceptBid(context.Background(), AcceptBidInput{BidID: bid.ID, SlotID: detail.Slots[0].ID})
	if err != nil {
		t.Fatalf("AcceptBid error: %v", err)
	}
	if result.Bid.Status != enums.BidStatusAccepted {
		t.Fatalf("expected accepted bid, got %q", result.Bid.Status)
	}
	if result.Bid.AcceptedSlotID == nil || *result.Bid.AcceptedSlotID != detail.Slots[0].ID {
		t.Fatalf("expected accepted slot recorded, got %+v", result.Bid.AcceptedSlotID)
	}
	if !result.OpportunityReady {
		t.Fatal("expected opportunity to advance with the last slot filled")
	}
	if f.repo.opportunities[detail.Opportunity.ID].Status != enums.OpportunityStatusAssigned {
		t.Fatalf("expected assigned status, got %q", f.repo.opportunities[detail.Opportunity.ID].Status)
	}
}

func TestAcceptBidRejectsFilledSlot(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil,
		SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"},
		SlotInput{SlotType: enums.RoleSlotCore, Category: "backend"},
	)
	first := f.seedMembership(enums.TierPartner)
	second := f.seedMembership(enums.TierPartner)

	var leadSlot, coreSlot models.RoleSlot
	for _, slot := range detail.Slots {
		switch slot.SlotType {
		case enums.RoleSlotLead:
			leadSlot = slot
		case enums.RoleSlotCore:
			coreSlot = slot
		}
	}

	firstBid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  first.ID,
		PreferredRole: enums.RoleSlotLead,
		AlternateRole: rolePtr(enums.RoleSlotCore),
	})
	if err != nil {
		t.Fatalf("first SubmitBid error: %v", err)
	}
	secondBid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  second.ID,
		PreferredRole: enums.RoleSlotLead,
		AlternateRole: rolePtr(enums.RoleSlotCore),
	})
	if err != nil {
		t.Fatalf("second SubmitBid error: %v", err)
	}
	leadOnly := f.seedMembership(enums.TierPartner)
	leadOnlyBid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  leadOnly.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if err != nil {
		t.Fatalf("third SubmitBid error: %v", err)
	}

	if _, err := f.svc.AcceptBid(context.Background(), AcceptBidInput{BidID: firstBid.ID, SlotID: leadSlot.ID}); err != nil {
		t.Fatalf("AcceptBid error: %v", err)
	}
	_, err = f.svc.AcceptBid(context.Background(), AcceptBidInput{BidID: secondBid.ID, SlotID: leadSlot.ID})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSlotAlreadyFilled) {
		t.Fatalf("expected slot already filled, got %v", err)
	}
	if f.repo.bids[leadOnlyBid.ID].Status != enums.BidStatusRejected {
		t.Fatalf("expected lead-only bid rejected once lead filled, got %q", f.repo.bids[leadOnlyBid.ID].Status)
	}
	if f.repo.bids[secondBid.ID].Status != enums.BidStatusPending {
		t.Fatalf("expected core-capable bid still pending, got %q", f.repo.bids[secondBid.ID].Status)
	}
	if f.repo.slots[coreSlot.ID].Filled {
		t.Fatal("core slot should remain open")
	}
}

func TestCloseOpportunityRejectsPendingBids(t *testing.T) {
	f := newFixture(t)
	detail := f.publishBidding(t, nil, SlotInput{SlotType: enums.RoleSlotLead, Category: "backend"})
	member := f.seedMembership(enums.TierContributor)

	bid, err := f.svc.SubmitBid(context.Background(), SubmitBidInput{
		OpportunityID: detail.Opportunity.ID,
		MembershipID:  member.ID,
		PreferredRole: enums.RoleSlotLead,
	})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}

	closed, err := f.svc.CloseOpportunity(context.Background(), detail.Opportunity.ID)
	if err != nil {
		t.Fatalf("CloseOpportunity error: %v", err)
	}
	if closed.Status != enums.OpportunityStatusClosed {
		t.Fatalf("expected closed, got %q", closed.Status)
	}
	if f.repo.bids[bid.ID].Status != enums.BidStatusRejected {
		t.Fatalf("expected pending bid rejected, got %q", f.repo.bids[bid.ID].Status)
	}
	if _, err := f.svc.CloseOpportunity(context.Background(), detail.Opportunity.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double close, got %v", err)
	}
}
