package enums

import "testing"

func TestOpportunityLifecycleForwardOnly(t *testing.T) {
	allowed := []struct {
		from, to OpportunityStatus
	}{
		{OpportunityStatusOpen, OpportunityStatusBidding},
		{OpportunityStatusOpen, OpportunityStatusClosed},
		{OpportunityStatusBidding, OpportunityStatusAssigned},
		{OpportunityStatusBidding, OpportunityStatusBidding},
		{OpportunityStatusBidding, OpportunityStatusClosed},
		{OpportunityStatusAssigned, OpportunityStatusClosed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to OpportunityStatus
	}{
		{OpportunityStatusAssigned, OpportunityStatusBidding},
		{OpportunityStatusClosed, OpportunityStatusOpen},
		{OpportunityStatusClosed, OpportunityStatusBidding},
		{OpportunityStatusBidding, OpportunityStatusOpen},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestBidStatusTerminalStatesAreSticky(t *testing.T) {
	for _, terminal := range []BidStatus{BidStatusAccepted, BidStatusRejected, BidStatusWithdrawn} {
		for _, next := range validBidStatuses {
			if terminal.CanTransitionTo(next) {
				t.Fatalf("expected no transition out of %s, got %s allowed", terminal, next)
			}
		}
	}
	if !BidStatusPending.CanTransitionTo(BidStatusAccepted) {
		t.Fatal("pending must be able to become accepted")
	}
	if BidStatusPending.CanTransitionTo(BidStatusPending) {
		t.Fatal("pending -> pending is not a transition")
	}
}

func TestProposalStatusMachine(t *testing.T) {
	if !ProposalStatusPending.CanTransitionTo(ProposalStatusCountersigned) {
		t.Fatal("pending proposal must accept countersign")
	}
	if !ProposalStatusPending.CanTransitionTo(ProposalStatusExpired) {
		t.Fatal("pending proposal must be able to expire")
	}
	if ProposalStatusCountersigned.CanTransitionTo(ProposalStatusExpired) {
		t.Fatal("countersigned proposal must not expire")
	}
}

func TestTierHelpers(t *testing.T) {
	if _, err := ParseTier(0); err == nil {
		t.Fatal("tier 0 must be invalid")
	}
	if _, err := ParseTier(7); err == nil {
		t.Fatal("tier 7 must be invalid")
	}
	tier, err := ParseTier(5)
	if err != nil {
		t.Fatalf("tier 5 should parse: %v", err)
	}
	if !tier.CouncilEligible() {
		t.Fatal("senior partner must be council eligible")
	}
	if TierPartner.CouncilEligible() {
		t.Fatal("partner must not be council eligible")
	}
	if TierAssociate.String() != "associate" {
		t.Fatalf("unexpected tier name %q", TierAssociate.String())
	}
}
