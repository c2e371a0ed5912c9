package app

import (
	"context"

	"github.com/dealdrop/dealdrop/internal/domain"
)

type AvailabilityRepository interface {
	GetOffers(ctx context.Context, offerIDs []string) ([]domain.Offer, error)
	CountRedeemedByOffers(ctx context.Context, offerIDs []string) (map[string]int, error)
}

// Availability is the browsing-side capacity view of one offer.
type Availability struct {
	RedeemedCount int
	Capacity      *int
	Left          *int
	SoldOut       bool
}

// AvailabilityService computes sold-out state by counting redeemed codes.
// Snapshot has no side effects and is cheap enough to run on a short interval
// per streaming connection.
type AvailabilityService struct {
	repo AvailabilityRepository
}

func NewAvailabilityService(repo AvailabilityRepository) *AvailabilityService {
	return &AvailabilityService{repo: repo}
}

// Snapshot returns availability for each known offer id; unknown ids are
// silently omitted.
func (s *AvailabilityService) Snapshot(ctx context.Context, offerIDs []string) (map[string]Availability, error) {
	if len(offerIDs) == 0 {
		return map[string]Availability{}, nil
	}

	offers, err := s.repo.GetOffers(ctx, offerIDs)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountRedeemedByOffers(ctx, offerIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Availability, len(offers))
	for _, offer := range offers {
		a := Availability{RedeemedCount: counts[offer.ID]}
		if !offer.Unlimited() {
			capacity := *offer.MaxRedemptions
			left := capacity - a.RedeemedCount
			if left < 0 {
				left = 0
			}
			a.Capacity = &capacity
			a.Left = &left
			a.SoldOut = a.RedeemedCount >= capacity
		}
		out[offer.ID] = a
	}
	return out, nil
}
