package app

import (
	"context"
	"testing"

	"github.com/dealdrop/dealdrop/internal/domain"
)

type fakeAvailabilityRepo struct {
	offers map[string]domain.Offer
	counts map[string]int
}

func (f *fakeAvailabilityRepo) GetOffers(_ context.Context, offerIDs []string) ([]domain.Offer, error) {
	out := make([]domain.Offer, 0, len(offerIDs))
	for _, id := range offerIDs {
		if offer, ok := f.offers[id]; ok {
			out = append(out, offer)
		}
	}
	return out, nil
}

func (f *fakeAvailabilityRepo) CountRedeemedByOffers(_ context.Context, offerIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(offerIDs))
	for _, id := range offerIDs {
		if n, ok := f.counts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func TestAvailabilityService_Snapshot(t *testing.T) {
	t.Parallel()

	five := 5
	two := 2
	repo := &fakeAvailabilityRepo{
		offers: map[string]domain.Offer{
			"limited":   {ID: "limited", MaxRedemptions: &five},
			"soldout":   {ID: "soldout", MaxRedemptions: &two},
			"unlimited": {ID: "unlimited"},
			"overdrawn": {ID: "overdrawn", MaxRedemptions: &two},
		},
		counts: map[string]int{
			"limited":   3,
			"soldout":   2,
			"unlimited": 9,
			"overdrawn": 4,
		},
	}
	svc := NewAvailabilityService(repo)

	got, err := svc.Snapshot(context.Background(), []string{"limited", "soldout", "unlimited", "overdrawn", "missing"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := got["missing"]; ok {
		t.Fatalf("unknown offer ids must be omitted")
	}

	limited := got["limited"]
	if limited.RedeemedCount != 3 || limited.SoldOut {
		t.Fatalf("unexpected limited view: %+v", limited)
	}
	if limited.Capacity == nil || *limited.Capacity != 5 || limited.Left == nil || *limited.Left != 2 {
		t.Fatalf("expected capacity 5 left 2, got %+v", limited)
	}

	soldout := got["soldout"]
	if !soldout.SoldOut || soldout.Left == nil || *soldout.Left != 0 {
		t.Fatalf("expected sold out with 0 left, got %+v", soldout)
	}

	unlimited := got["unlimited"]
	if unlimited.SoldOut || unlimited.Capacity != nil || unlimited.Left != nil {
		t.Fatalf("unlimited offers never sell out: %+v", unlimited)
	}
	if unlimited.RedeemedCount != 9 {
		t.Fatalf("expected redeemed count to pass through, got %d", unlimited.RedeemedCount)
	}

	overdrawn := got["overdrawn"]
	if overdrawn.Left == nil || *overdrawn.Left != 0 {
		t.Fatalf("left must clamp at zero, got %+v", overdrawn)
	}

	empty, err := svc.Snapshot(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty snapshot for no ids, got %v %v", empty, err)
	}
}
