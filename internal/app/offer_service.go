package app

import (
	"context"
	"time"

	"github.com/dealdrop/dealdrop/internal/clock"
	"github.com/dealdrop/dealdrop/internal/domain"
)

type OfferRepository interface {
	CreateOffer(ctx context.Context, o domain.Offer) error
	UpdateOffer(ctx context.Context, o domain.Offer) error
	GetOffer(ctx context.Context, id string) (domain.Offer, error)
	ListOffersByMerchant(ctx context.Context, merchantID string) ([]domain.Offer, error)
}

// ImageResolver turns an object-storage key into a public URL. Uploads
// themselves happen against the external storage provider; the service only
// records the resulting URL.
type ImageResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

type OfferService struct {
	repo   OfferRepository
	clock  clock.Clock
	images ImageResolver
}

func NewOfferService(repo OfferRepository, clk clock.Clock, images ImageResolver) *OfferService {
	return &OfferService{repo: repo, clock: clk, images: images}
}

type OfferInput struct {
	Title              string
	Description        string
	OriginalPriceCents *int64
	DiscountValue      int
	StartsAt           time.Time
	EndsAt             time.Time
	MaxRedemptions     *int
	PublicCode         *string
	ImageKey           *string
}

func (in OfferInput) validate() error {
	if in.Title == "" {
		return domain.ErrTitleRequired
	}
	if !in.EndsAt.After(in.StartsAt) {
		return domain.ErrInvalidWindow
	}
	if in.DiscountValue < 0 || in.DiscountValue > 100 {
		return domain.ErrInvalidDiscount
	}
	if in.MaxRedemptions != nil && *in.MaxRedemptions <= 0 {
		return domain.ErrInvalidCapacity
	}
	return nil
}

func (s *OfferService) Create(ctx context.Context, merchantID string, in OfferInput) (domain.Offer, error) {
	if err := in.validate(); err != nil {
		return domain.Offer{}, err
	}

	offer := domain.Offer{
		ID:                 newID(),
		MerchantID:         merchantID,
		Title:              in.Title,
		Description:        in.Description,
		OriginalPriceCents: in.OriginalPriceCents,
		DiscountKind:       domain.DiscountKindFor(in.DiscountValue),
		DiscountValue:      in.DiscountValue,
		StartsAt:           in.StartsAt.UTC(),
		EndsAt:             in.EndsAt.UTC(),
		MaxRedemptions:     in.MaxRedemptions,
		PublicCode:         in.PublicCode,
		CreatedAt:          s.clock.Now(),
	}
	if in.ImageKey != nil && *in.ImageKey != "" && s.images != nil {
		url, err := s.images.URL(ctx, *in.ImageKey)
		if err != nil {
			return domain.Offer{}, err
		}
		offer.ImageURL = &url
	}

	if err := s.repo.CreateOffer(ctx, offer); err != nil {
		return domain.Offer{}, err
	}
	return offer, nil
}

func (s *OfferService) Update(ctx context.Context, merchantID, offerID string, in OfferInput) (domain.Offer, error) {
	if err := in.validate(); err != nil {
		return domain.Offer{}, err
	}

	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if offer.MerchantID != merchantID {
		return domain.Offer{}, domain.ErrWrongMerchant
	}

	offer.Title = in.Title
	offer.Description = in.Description
	offer.OriginalPriceCents = in.OriginalPriceCents
	offer.DiscountValue = in.DiscountValue
	offer.DiscountKind = domain.DiscountKindFor(in.DiscountValue)
	offer.StartsAt = in.StartsAt.UTC()
	offer.EndsAt = in.EndsAt.UTC()
	offer.MaxRedemptions = in.MaxRedemptions
	offer.PublicCode = in.PublicCode

	if err := s.repo.UpdateOffer(ctx, offer); err != nil {
		return domain.Offer{}, err
	}
	return offer, nil
}

func (s *OfferService) Get(ctx context.Context, offerID string) (domain.Offer, error) {
	return s.repo.GetOffer(ctx, offerID)
}

func (s *OfferService) ListByMerchant(ctx context.Context, merchantID string) ([]domain.Offer, error) {
	return s.repo.ListOffersByMerchant(ctx, merchantID)
}

type RepostInput struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// Repost copies an ended offer into a fresh time window, keeping a lineage
// pointer to the original. Reposting a still-running offer is rejected.
func (s *OfferService) Repost(ctx context.Context, merchantID, offerID string, in RepostInput) (domain.Offer, error) {
	original, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if original.MerchantID != merchantID {
		return domain.Offer{}, domain.ErrWrongMerchant
	}

	now := s.clock.Now()
	if !original.EndedAt(now) {
		return domain.Offer{}, domain.ErrOfferStillLive
	}
	if !in.EndsAt.After(in.StartsAt) {
		return domain.Offer{}, domain.ErrInvalidWindow
	}

	lineage := original.ID
	repost := original
	repost.ID = newID()
	repost.StartsAt = in.StartsAt.UTC()
	repost.EndsAt = in.EndsAt.UTC()
	repost.RepostedFrom = &lineage
	repost.CreatedAt = now

	if err := s.repo.CreateOffer(ctx, repost); err != nil {
		return domain.Offer{}, err
	}
	return repost, nil
}
